package sqlinline

const QSelectOrganization = `--sql cb5a30d0-dabd-4cfa-9a4e-940a02e35e16
select id, plan_id, billing_period_start
from organizations
where id = $1::uuid
for update;
`

// Net usage inside the accounting window. Refund events carry negative
// credits, so the plain sum already excludes refunded jobs.
const QSelectCreditUsage = `--sql 6bfd19ad-23af-404d-9f49-323eafc2a242
select coalesce(sum(credits), 0)
from credit_events
where organization_id = $1::uuid and created_at >= $2::timestamptz;
`

const QInsertCreditEvent = `--sql 00962a7f-f774-479f-acaf-d654607d13c0
insert into credit_events(id, job_id, organization_id, credits, job_type, is_overage, status)
values (gen_random_uuid(), $1::uuid, $2::uuid, $3::int, $4::text, $5::boolean, $6::text);
`

const QSelectJobCreditBalance = `--sql 075b06e2-884e-453e-b8c1-10bb4c7d62bf
select coalesce(sum(credits), 0),
       coalesce(max(organization_id::text), ''),
       coalesce(max(job_type), '')
from credit_events
where job_id = $1::uuid;
`

const QUpdateOrganizationPlan = `--sql 5572eea2-6ff6-4086-aeb9-dfce39d6bcca
insert into organizations(id, plan_id, billing_period_start)
values ($1::uuid, $2::text, $3::timestamptz)
on conflict (id) do update
set plan_id = excluded.plan_id, billing_period_start = excluded.billing_period_start;
`
