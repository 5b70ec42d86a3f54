package sqlinline

// Results are immutable; a duplicate reconciliation must not overwrite the
// payload the job completed with.
const QInsertResult = `--sql e8253ced-3316-4bb9-9dec-99b844758773
insert into results(job_id, raw_payload)
values ($1::uuid, $2::jsonb)
on conflict (job_id) do nothing;
`

const QSelectResultByJob = `--sql b8b3e6a2-e160-46fb-ace5-292c97cc5caf
select job_id, raw_payload, created_at
from results
where job_id = $1::uuid;
`

const QSelectResultPayload = `--sql aa5a4ced-72dd-4fab-9b7c-0ad99a1e1d75
select raw_payload from results where job_id = $1::uuid;
`
