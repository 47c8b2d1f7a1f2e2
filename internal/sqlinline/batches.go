package sqlinline

const batchColumns = `id, user_id, model_id, aspect_ratio,
  glasses, hair_color, hair_style, backgrounds, styles,
  status, total_images_generated, credits_used, created_at, completed_at`

// QFinalizeBatch flips a generating batch to its terminal status once every
// job is terminal. The status='generating' guard makes concurrent finalize
// attempts idempotent: exactly one update wins, later ones match no row.
// Totals come from the photos actually written, not the requested count.
const QFinalizeBatch = `--sql e9a9ea86-9d8f-4284-be70-e5781dd0d834
with totals as (
    select
        count(*) filter (where status not in ('completed', 'failed')) as open_jobs,
        count(*) filter (where status = 'completed') as completed_jobs
    from generation_jobs
    where batch_id = $1
),
produced as (
    select count(*) as n
    from photos
    where generation_batch_id = $1
)
update generation_batches b
set status = case when t.completed_jobs > 0 then 'completed' else 'failed' end,
    total_images_generated = p.n,
    credits_used = p.n,
    completed_at = now()
from totals t, produced p
where b.id = $1
  and b.status = 'generating'
  and t.open_jobs = 0;
`

const QSelectBatch = `--sql 2ea9eca1-2bbf-4075-a7c5-ef144ac3bd1b
select ` + batchColumns + `
from generation_batches
where id = $1;
`
