package sqlinline

const jobColumns = `id, batch_id, user_id, model_id,
  reference_image_url, reference_image_prompt, training_image_urls,
  base_prompt, aspect_ratio, num_images_per_example,
  glasses, hair_color, hair_style, backgrounds, styles,
  status, attempts, max_attempts, retry_at, locked_by, locked_at,
  error_message, created_at, processed_at, completed_at`

// QEnqueueBatch creates the batch row and every job row in one statement so
// the batch always exists before any job that references it.
const QEnqueueBatch = `--sql bcc67dd8-8a76-42a5-a83e-2d8c9f8f1a3b
with ins_batch as (
    insert into generation_batches (
        id, user_id, model_id, aspect_ratio,
        glasses, hair_color, hair_style, backgrounds, styles,
        status, total_images_generated, credits_used
    )
    values ($1, $2, $3, $4, $5, $6, $7, $8::text[], $9::text[], 'generating', 0, 0)
    returning id
)
insert into generation_jobs (
    id, batch_id, user_id, model_id,
    reference_image_url, reference_image_prompt, training_image_urls,
    base_prompt, aspect_ratio, num_images_per_example,
    glasses, hair_color, hair_style, backgrounds, styles,
    status, attempts, max_attempts
)
select
    j.id, b.id, $2, $3,
    j.reference_image_url, j.reference_image_prompt, $10::text[],
    $11, $4, $12,
    $5, $6, $7, $8::text[], $9::text[],
    'pending', 0, $13
from ins_batch b,
     unnest($14::uuid[], $15::text[], $16::text[])
         as j(id, reference_image_url, reference_image_prompt);
`

// QClaimNextJob atomically claims the oldest eligible job. Contending
// workers skip rows already locked by someone else instead of erroring.
const QClaimNextJob = `--sql 94c08f85-a496-4008-865b-3ef8b99560e7
with next_job as (
    select id
    from generation_jobs
    where status = 'pending'
       or (status = 'rate_limited' and retry_at <= now())
    order by created_at asc
    for update skip locked
    limit 1
),
claimed as (
    update generation_jobs
    set status = 'processing',
        locked_by = $1,
        locked_at = now(),
        processed_at = now(),
        retry_at = null
    where id in (select id from next_job)
    returning ` + jobColumns + `
)
select * from claimed;
`

// QReclaimStaleLocks returns crashed workers' claims to the queue.
const QReclaimStaleLocks = `--sql 42382436-8739-40d7-9231-2a9b5dd298ee
update generation_jobs
set status = 'pending',
    locked_by = null,
    locked_at = null
where status = 'processing'
  and locked_at < $1;
`

const QIncrementJobAttempt = `--sql d79a5620-e3fb-4602-9ab4-c0452d4f158b
update generation_jobs
set attempts = attempts + 1
where id = $1
  and status not in ('completed', 'failed')
returning attempts;
`

const QMarkJobCompleted = `--sql f8e2dcb3-6451-4d5a-85da-fe8a1c10bd6e
update generation_jobs
set status = 'completed',
    completed_at = now(),
    locked_by = null,
    locked_at = null,
    retry_at = null,
    error_message = null
where id = $1
  and status not in ('completed', 'failed');
`

const QMarkJobFailed = `--sql 2638b35c-223e-46fc-84ac-2c7a0e5c782d
update generation_jobs
set status = 'failed',
    completed_at = now(),
    locked_by = null,
    locked_at = null,
    retry_at = null,
    error_message = $2
where id = $1
  and status not in ('completed', 'failed');
`

const QMarkJobRateLimited = `--sql 7f87f650-86d5-48b5-a7fc-3c1b90820992
update generation_jobs
set status = 'rate_limited',
    retry_at = $2,
    locked_by = null,
    locked_at = null,
    error_message = $3
where id = $1
  and status not in ('completed', 'failed');
`

const QSelectJob = `--sql 6fcd3517-6843-477b-a23d-2415f3ee703d
select ` + jobColumns + `
from generation_jobs
where id = $1;
`

const QSelectBatchJobStatuses = `--sql 31c4f89e-07e2-46fb-9d08-6a33c3f8d21a
select status
from generation_jobs
where batch_id = $1;
`
