package sqlinline

const QDeleteInjectedForJob = `--sql 4274417b-1f63-4313-bca0-5ab85de141f1
delete from injected_templates where job_id = $1::uuid;
`

const QInsertInjected = `--sql f0af60f0-5317-4de4-9668-17dfb4cc2504
insert into injected_templates(id, job_id, angle_index, angle_name, html_content, template_id)
values (gen_random_uuid(), $1::uuid, $2::int, $3::text, $4::text, $5::uuid);
`

const QSelectInjectedByJob = `--sql f5e58bad-f963-405f-aa23-7d6a698588e1
select id, job_id, angle_index, angle_name, html_content, template_id, created_at
from injected_templates
where job_id = $1::uuid
order by angle_index asc;
`

// List-view projection: the rendered HTML is omitted.
const QSelectInjectedMetaByJob = `--sql 70b7f27b-f6f1-4cc3-8967-dc6a6eba89a7
select id, job_id, angle_index, angle_name, template_id, created_at
from injected_templates
where job_id = $1::uuid
order by angle_index asc;
`

const QSelectInjectedByJobAngle = `--sql dbb771bc-c6bb-4c90-8f95-1ba794f45f88
select id, job_id, angle_index, angle_name, html_content, template_id, created_at
from injected_templates
where job_id = $1::uuid and angle_index = $2::int;
`

const QCountInjectedForJob = `--sql 861401dc-38c5-4707-a3bb-f1f2f70a6420
select count(*) from injected_templates where job_id = $1::uuid;
`
