package sqlinline

const QSelectTemplateByID = `--sql e2acdf68-f2f6-4853-aff4-5316f8435657
select id, name, advertorial_type, html_skeleton, is_active, created_at, updated_at
from injectable_templates
where id = $1::uuid;
`

const QSelectActiveTemplateByType = `--sql fc89c278-22cf-4288-8aac-d608db971c4b
select id, name, advertorial_type, html_skeleton, is_active, created_at, updated_at
from injectable_templates
where advertorial_type = $1::text and is_active
order by updated_at desc
limit 1;
`

const QSelectActiveTemplates = `--sql a620b9d7-2daa-441d-aa06-dad5dd4e9ab4
select id, name, advertorial_type, is_active, created_at, updated_at
from injectable_templates
where is_active and ($1::text = '' or advertorial_type = $1::text)
order by name asc;
`
