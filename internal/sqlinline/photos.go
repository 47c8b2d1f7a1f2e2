package sqlinline

const QInsertPhoto = `--sql 6daaf27f-95b8-4400-9ac0-01c60a1602cd
insert into photos (
    id, user_id, model_id, generation_batch_id, url, status, credits_used,
    prompt, aspect_ratio, glasses, hair_color, hair_style, backgrounds, styles
)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::text[], $14::text[]);
`

const QSelectBatchPhotos = `--sql da3123a7-7b0f-4ff9-9ba7-fad337d8b0cb
select id, user_id, model_id, generation_batch_id, url, status, credits_used,
       prompt, aspect_ratio, glasses, hair_color, hair_style, backgrounds, styles,
       created_at
from photos
where generation_batch_id = $1
order by created_at asc;
`
