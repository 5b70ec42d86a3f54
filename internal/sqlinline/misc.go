package sqlinline

const QHealthCheck = `--sql 24d54ca5-ce46-47b2-92e8-f6b198239483
select 1;
`

const QSelectIntegrationToken = `--sql 1a3797b7-644a-4a05-a00a-bfe4904d94e9
select token from integration_tokens where provider = $1::text;
`

const QUpsertIntegrationToken = `--sql 2288ffc6-dd49-4eab-9e01-348bc67b22f3
insert into integration_tokens(provider, token, properties, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now())
on conflict (provider) do update
set token = excluded.token, properties = excluded.properties, updated_at = now();
`
