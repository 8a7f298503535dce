package sqlinline

const QDebitFrequency = `--sql 97c10836-9866-418b-a886-b66c57bf7d7e
update users
set frequency = frequency - $3::int,
    update_time = now()
where user_id = $1::text
  and frequency >= $2::int
returning frequency;
`

const QSelectFrequency = `--sql 52b90683-4f42-4259-af04-127988ba2263
select frequency
from users
where user_id = $1::text
limit 1;
`

const QGrantFrequency = `--sql ad3544cb-5473-4fb1-846f-5c79f559dd8f
insert into users (user_id, frequency, created_time, update_time)
values ($1::text, $2::int, now(), now())
on conflict (user_id) do update set
    frequency = users.frequency + excluded.frequency,
    update_time = now()
returning frequency;
`
