// Package postgres provides Postgres-backed persistence implementations.
//
// The stores assume the following schema:
//
//	CREATE TABLE listings (
//		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
//		name TEXT NOT NULL,
//		region TEXT NOT NULL,
//		sub_region TEXT NOT NULL,
//		theme TEXT NOT NULL DEFAULT '',
//		duration_minutes INT NOT NULL DEFAULT 60,
//		price_per_person INT NOT NULL DEFAULT 0,
//		company TEXT NOT NULL,
//		rating DOUBLE PRECISION,
//		image_url TEXT NOT NULL DEFAULT '',
//		source_url TEXT NOT NULL DEFAULT '',
//		booking_url TEXT NOT NULL DEFAULT '',
//		difficulty_level INT NOT NULL DEFAULT 3,
//		activity_level INT NOT NULL DEFAULT 2,
//		group_size_min INT NOT NULL DEFAULT 2,
//		group_size_max INT NOT NULL DEFAULT 4,
//		description TEXT NOT NULL DEFAULT '',
//		embedding REAL[],
//		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//		UNIQUE (name, region, sub_region, company)
//	);
//
//	CREATE TABLE dead_letters (
//		id UUID PRIMARY KEY,
//		stage TEXT NOT NULL,
//		payload JSONB NOT NULL,
//		error_reason TEXT NOT NULL DEFAULT '',
//		attempt_count INT NOT NULL DEFAULT 0,
//		replayed_at TIMESTAMPTZ,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX dead_letters_live_idx ON dead_letters (stage, created_at)
//		WHERE replayed_at IS NULL;
package postgres
