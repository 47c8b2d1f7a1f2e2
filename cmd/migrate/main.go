package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/infra"
)

var statements = []string{
	`create table if not exists generation_batches (
		id uuid primary key,
		user_id text not null,
		model_id text not null,
		aspect_ratio text not null,
		glasses text not null default 'no',
		hair_color text not null default '',
		hair_style text not null default '',
		backgrounds text[] not null default '{}',
		styles text[] not null default '{}',
		status text not null default 'generating',
		total_images_generated int not null default 0,
		credits_used int not null default 0,
		created_at timestamptz not null default now(),
		completed_at timestamptz
	)`,
	`create table if not exists generation_jobs (
		id uuid primary key,
		batch_id uuid not null references generation_batches(id),
		user_id text not null,
		model_id text not null,
		reference_image_url text not null,
		reference_image_prompt text not null default '',
		training_image_urls text[] not null default '{}',
		base_prompt text not null default '',
		aspect_ratio text not null,
		num_images_per_example int not null,
		glasses text not null default 'no',
		hair_color text not null default '',
		hair_style text not null default '',
		backgrounds text[] not null default '{}',
		styles text[] not null default '{}',
		status text not null default 'pending',
		attempts int not null default 0,
		max_attempts int not null default 5,
		retry_at timestamptz,
		locked_by text,
		locked_at timestamptz,
		error_message text,
		created_at timestamptz not null default now(),
		processed_at timestamptz,
		completed_at timestamptz
	)`,
	`create table if not exists photos (
		id uuid primary key,
		user_id text not null,
		model_id text not null,
		generation_batch_id uuid not null references generation_batches(id),
		url text not null,
		status text not null default 'completed',
		credits_used int not null default 1,
		prompt text not null default '',
		aspect_ratio text not null default '',
		glasses text not null default 'no',
		hair_color text not null default '',
		hair_style text not null default '',
		backgrounds text[] not null default '{}',
		styles text[] not null default '{}',
		created_at timestamptz not null default now()
	)`,
	// Partial index matching the claim predicate keeps ClaimNext cheap even
	// with a large terminal backlog.
	`create index if not exists idx_generation_jobs_claim
		on generation_jobs (created_at)
		where status in ('pending', 'rate_limited')`,
	`create index if not exists idx_generation_jobs_batch on generation_jobs (batch_id)`,
	`create index if not exists idx_generation_jobs_stale
		on generation_jobs (locked_at)
		where status = 'processing'`,
	`create index if not exists idx_photos_batch on photos (generation_batch_id)`,
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: db connection failed")
	}
	defer pool.Close()

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			logger.Fatal().Err(err).Msg("migrate: statement failed")
		}
	}
	logger.Info().Int("statements", len(statements)).Msg("migrate: schema applied")
}
