package sqlinline

const QSelectControlNetByType = `--sql 80f74fe7-a35e-4442-9a10-2adb90d8bbef
select
    type,
    type_name,
    text,
    is_selected,
    guidance_start,
    guidance_end,
    model,
    module,
    weight
from t_sd_control_net
where type = $1::int
limit 1;
`

const QListControlNets = `--sql b3ec5510-50ab-4e34-85a1-94fc99ad1960
select
    type,
    type_name,
    text,
    is_selected,
    guidance_start,
    guidance_end,
    model,
    module,
    weight
from t_sd_control_net
order by type asc;
`
