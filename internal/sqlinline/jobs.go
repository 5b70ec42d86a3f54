package sqlinline

const QInsertJob = `--sql 74c0df7a-1414-47ca-a56e-20098530868c
insert into jobs(id, organization_id, user_id, advertorial_type, template_id, status, progress, payload)
values ($1::uuid, $2::uuid, $3::uuid, $4::text, $5::uuid, 'pending', 0, coalesce($6::jsonb, '{}'::jsonb));
`

const QSelectJobByID = `--sql e4534f80-4eac-4406-b3ee-f37122cb60db
select id, organization_id, user_id, advertorial_type, template_id, status, progress,
       external_execution_id, error_message, payload, poll_failures, not_found_count,
       last_polled_at, created_at, updated_at, completed_at
from jobs
where id = $1::uuid;
`

const QSelectJobForOrg = `--sql 1d8a09cd-374d-4142-8d33-f2da4f8d1124
select id, organization_id, user_id, advertorial_type, template_id, status, progress,
       external_execution_id, error_message, payload, poll_failures, not_found_count,
       last_polled_at, created_at, updated_at, completed_at
from jobs
where id = $1::uuid and organization_id = $2::uuid;
`

// Set-once: the external execution id never changes after the first write.
const QSetExternalExecution = `--sql cefd7b0c-a25b-4b99-ae4d-0316439af0ae
update jobs
set external_execution_id = $2::text, updated_at = now()
where id = $1::uuid and external_execution_id is null;
`

const QMarkProcessing = `--sql fe1121a7-f0fd-4f69-ad95-1c9fe8b4a3e4
update jobs
set status = 'processing', progress = greatest(progress, $2::int), updated_at = now()
where id = $1::uuid and status = 'pending';
`

// Progress only moves forward; a regression reported upstream is ignored.
const QUpdateProgress = `--sql 38a8adc8-52c0-4007-87d9-2ba37b820999
update jobs
set progress = greatest(progress, $2::int),
    status = case when status = 'pending' then 'processing' else status end,
    updated_at = now()
where id = $1::uuid and status in ('pending', 'processing');
`

const QMarkCompleted = `--sql 03ddd69a-2189-4b1f-abc5-148c9cfd7827
update jobs
set status = 'completed', progress = 100, completed_at = now(), updated_at = now()
where id = $1::uuid and status in ('pending', 'processing');
`

const QMarkFailed = `--sql 6fb6a874-cb13-438b-b76b-298bbafd69d7
update jobs
set status = 'failed', error_message = $2::text, updated_at = now()
where id = $1::uuid and status in ('pending', 'processing');
`

const QSelectPollable = `--sql 0378cece-81f0-4b0a-9346-2fa7e3742afe
select id, external_execution_id, poll_failures, not_found_count, created_at
from jobs
where status in ('pending', 'processing')
  and external_execution_id is not null
  and (last_polled_at is null or last_polled_at < now() - make_interval(secs => $1::float8))
order by last_polled_at asc nulls first, created_at asc
limit $2::int;
`

const QSelectUnsubmitted = `--sql b305e6d7-9441-4ff3-a258-9ec7cecaa037
select id, created_at
from jobs
where status = 'pending'
  and external_execution_id is null
  and created_at < now() - make_interval(secs => $1::float8)
order by created_at asc
limit $2::int;
`

const QTouchLastPolled = `--sql 397c6985-2002-46e9-9947-95b6c38ce4ec
update jobs set last_polled_at = now() where id = $1::uuid;
`

const QIncrementPollFailures = `--sql d25de46f-57b8-46bc-b58f-125c8bc6e4ba
update jobs set poll_failures = poll_failures + 1, updated_at = now()
where id = $1::uuid
returning poll_failures;
`

const QIncrementNotFound = `--sql 61c9b59a-7d30-41aa-94d4-ceeba8ea873d
update jobs set not_found_count = not_found_count + 1, updated_at = now()
where id = $1::uuid
returning not_found_count;
`

const QResetPollCounters = `--sql 3c9a8f91-f271-4e44-b044-711a2c3c6f03
update jobs set poll_failures = 0, not_found_count = 0
where id = $1::uuid and (poll_failures <> 0 or not_found_count <> 0);
`

const QSelectJobForInjection = `--sql 1d5ac1a7-b864-468b-b08c-ca32ff519d5c
select advertorial_type, template_id from jobs where id = $1::uuid;
`
