package handlers

import (
	"context"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/middleware"
)

type messageKey int

const (
	msgSuccess messageKey = iota
	msgAuthFailed
	msgInsufficientCredit
	msgInvalidParams
	msgInvalidImage
	msgProfileNotFound
	msgNotFound
	msgFailure
)

var messages = map[string]map[messageKey]string{
	middleware.LocaleEN: {
		msgSuccess:            "success",
		msgAuthFailed:         "Token check failed, please do not call the API directly",
		msgInsufficientCredit: "Not enough Super coins, watch an ad video to earn more",
		msgInvalidParams:      "Invalid parameters",
		msgInvalidImage:       "Unsupported image format",
		msgProfileNotFound:    "Unknown control net type",
		msgNotFound:           "Not found",
		msgFailure:            "Drawing failed, please try again later",
	},
	middleware.LocaleZH: {
		msgSuccess:            "成功",
		msgAuthFailed:         "token校验失败，请不要模拟接口使用",
		msgInsufficientCredit: "Super币不足 请观看广告视频获取奖励",
		msgInvalidParams:      "参数错误",
		msgInvalidImage:       "图片格式不正确",
		msgProfileNotFound:    "绘图类型不存在",
		msgNotFound:           "数据不存在",
		msgFailure:            "绘图失败，请稍后再试",
	},
}

func message(ctx context.Context, key messageKey) string {
	table, ok := messages[middleware.LocaleFromContext(ctx)]
	if !ok {
		table = messages[middleware.LocaleEN]
	}
	return table[key]
}
