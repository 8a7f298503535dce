package sqlinline

const QInsertDrawing = `--sql 878dba57-558a-456f-b1b1-763c7fc95369
insert into drawings (
    drawing_id,
    user_id,
    prompt,
    original_url,
    generate_url,
    is_public,
    env,
    created_time,
    update_time
) values (
    gen_random_uuid(),
    $1::text,
    $2::text,
    $3::text,
    $4::text,
    false,
    $5::text,
    now(),
    now()
) returning drawing_id::text;
`

const QSelectDrawingForUser = `--sql 3fe4b6da-62be-4e86-b306-293b27d911f7
select
    drawing_id::text,
    user_id,
    prompt,
    original_url,
    generate_url,
    is_public,
    env,
    created_time,
    update_time
from drawings
where drawing_id = $1::uuid
  and user_id = $2::text
limit 1;
`
