package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	pipelineerrors "github.com/videomoments/pipeline/errors"
	_ "github.com/lib/pq"
)

// schema is embedded so a fresh local/dev Postgres instance can be brought
// up without a separate migration tool; production deployments are
// expected to run the same DDL through whatever migration tool they
// already standardize on.
const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id               text PRIMARY KEY,
	cloud_url        text NOT NULL DEFAULT '',
	source_url       text NOT NULL DEFAULT '',
	duration_seconds double precision NOT NULL DEFAULT 0,
	size_bytes       bigint NOT NULL DEFAULT 0,
	codec            text NOT NULL DEFAULT '',
	width            bigint NOT NULL DEFAULT 0,
	height           bigint NOT NULL DEFAULT 0,
	fps              double precision NOT NULL DEFAULT 0,
	created_at       timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transcripts (
	video_id           text PRIMARY KEY REFERENCES videos(id),
	full_text          text NOT NULL DEFAULT '',
	word_timestamps    jsonb NOT NULL DEFAULT '[]',
	segment_timestamps jsonb NOT NULL DEFAULT '[]',
	created_at         timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS generation_configs (
	id          text PRIMARY KEY,
	video_id    text NOT NULL REFERENCES videos(id),
	model       text NOT NULL DEFAULT '',
	temperature double precision NOT NULL DEFAULT 0,
	prompt      text NOT NULL DEFAULT '',
	created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS moments (
	id                   text PRIMARY KEY,
	video_id             text NOT NULL REFERENCES videos(id),
	start_time           double precision NOT NULL,
	end_time             double precision NOT NULL,
	title                text NOT NULL DEFAULT '',
	is_refined           boolean NOT NULL DEFAULT false,
	parent_id            text NOT NULL DEFAULT '',
	local_clip_path      text NOT NULL DEFAULT '',
	cloud_clip_path      text NOT NULL DEFAULT '',
	generation_config_id text NOT NULL DEFAULT ''
);
`

// EnsureSchema runs the CREATE TABLE IF NOT EXISTS statements, safe to
// call on every process start.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

type PostgresVideoRepository struct{ db *sql.DB }

func NewPostgresVideoRepository(db *sql.DB) *PostgresVideoRepository {
	return &PostgresVideoRepository{db: db}
}

func (r *PostgresVideoRepository) GetByIdentifier(ctx context.Context, videoID string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, cloud_url, source_url, duration_seconds, size_bytes, codec, width, height, fps, created_at
		FROM videos WHERE id = $1`, videoID)
	var v Video
	err := row.Scan(&v.ID, &v.CloudURL, &v.SourceURL, &v.DurationSeconds, &v.SizeBytes, &v.Codec, &v.Width, &v.Height, &v.FPS, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to query video", err)
	}
	return &v, nil
}

func (r *PostgresVideoRepository) Insert(ctx context.Context, v *Video) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (id, cloud_url, source_url, duration_seconds, size_bytes, codec, width, height, fps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			cloud_url = EXCLUDED.cloud_url,
			source_url = EXCLUDED.source_url,
			duration_seconds = EXCLUDED.duration_seconds,
			size_bytes = EXCLUDED.size_bytes,
			codec = EXCLUDED.codec,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			fps = EXCLUDED.fps`,
		v.ID, v.CloudURL, v.SourceURL, v.DurationSeconds, v.SizeBytes, v.Codec, v.Width, v.Height, v.FPS)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to insert video", err)
	}
	return nil
}

type PostgresTranscriptRepository struct{ db *sql.DB }

func NewPostgresTranscriptRepository(db *sql.DB) *PostgresTranscriptRepository {
	return &PostgresTranscriptRepository{db: db}
}

func (r *PostgresTranscriptRepository) GetByVideoID(ctx context.Context, videoID string) (*Transcript, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT video_id, full_text, word_timestamps, segment_timestamps, created_at
		FROM transcripts WHERE video_id = $1`, videoID)
	var t Transcript
	var wordsRaw, segmentsRaw []byte
	err := row.Scan(&t.VideoID, &t.FullText, &wordsRaw, &segmentsRaw, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to query transcript", err)
	}
	if err := json.Unmarshal(wordsRaw, &t.WordTimestamps); err != nil {
		return nil, pipelineerrors.New(pipelineerrors.ParseError, "failed to decode stored word timestamps", err)
	}
	if err := json.Unmarshal(segmentsRaw, &t.SegmentTimestamps); err != nil {
		return nil, pipelineerrors.New(pipelineerrors.ParseError, "failed to decode stored segment timestamps", err)
	}
	return &t, nil
}

func (r *PostgresTranscriptRepository) Insert(ctx context.Context, t *Transcript) error {
	wordsRaw, err := json.Marshal(t.WordTimestamps)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "failed to encode word timestamps", err)
	}
	segmentsRaw, err := json.Marshal(t.SegmentTimestamps)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "failed to encode segment timestamps", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transcripts (video_id, full_text, word_timestamps, segment_timestamps)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (video_id) DO UPDATE SET
			full_text = EXCLUDED.full_text,
			word_timestamps = EXCLUDED.word_timestamps,
			segment_timestamps = EXCLUDED.segment_timestamps`,
		t.VideoID, t.FullText, wordsRaw, segmentsRaw)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to insert transcript", err)
	}
	return nil
}

type PostgresGenerationConfigRepository struct{ db *sql.DB }

func NewPostgresGenerationConfigRepository(db *sql.DB) *PostgresGenerationConfigRepository {
	return &PostgresGenerationConfigRepository{db: db}
}

func (r *PostgresGenerationConfigRepository) Insert(ctx context.Context, cfg *GenerationConfig) (string, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO generation_configs (id, video_id, model, temperature, prompt)
		VALUES ($1, $2, $3, $4, $5)`,
		cfg.ID, cfg.VideoID, cfg.Model, cfg.Temperature, cfg.Prompt)
	if err != nil {
		return "", pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to insert generation config", err)
	}
	return cfg.ID, nil
}

type PostgresMomentRepository struct{ db *sql.DB }

func NewPostgresMomentRepository(db *sql.DB) *PostgresMomentRepository {
	return &PostgresMomentRepository{db: db}
}

func (r *PostgresMomentRepository) ListByVideoID(ctx context.Context, videoID string) ([]Moment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, video_id, start_time, end_time, title, is_refined, parent_id, local_clip_path, cloud_clip_path, generation_config_id
		FROM moments WHERE video_id = $1 ORDER BY start_time`, videoID)
	if err != nil {
		return nil, pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to query moments", err)
	}
	defer rows.Close()

	var moments []Moment
	for rows.Next() {
		var m Moment
		if err := rows.Scan(&m.ID, &m.VideoID, &m.StartTime, &m.EndTime, &m.Title, &m.IsRefined, &m.ParentID, &m.LocalClipPath, &m.CloudClipPath, &m.GenerationConfigID); err != nil {
			return nil, pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to scan moment row", err)
		}
		moments = append(moments, m)
	}
	return moments, rows.Err()
}

func (r *PostgresMomentRepository) BulkInsert(ctx context.Context, moments []Moment) error {
	if len(moments) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to begin moment insert transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO moments (id, video_id, start_time, end_time, title, is_refined, parent_id, local_clip_path, cloud_clip_path, generation_config_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to prepare moment insert", err)
	}
	defer stmt.Close()

	for _, m := range moments {
		if _, err := stmt.ExecContext(ctx, m.ID, m.VideoID, m.StartTime, m.EndTime, m.Title, m.IsRefined, m.ParentID, m.LocalClipPath, m.CloudClipPath, m.GenerationConfigID); err != nil {
			return pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to insert moment", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to commit moment insert transaction", err)
	}
	return nil
}

func (r *PostgresMomentRepository) UpdateClipPaths(ctx context.Context, momentID, local, cloud string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE moments SET local_clip_path = $2, cloud_clip_path = $3 WHERE id = $1`,
		momentID, local, cloud)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to update moment clip paths", err)
	}
	return nil
}

// InsertRefined writes refined as the sole refined child of parentID,
// replacing any prior refinement of the same parent.
func (r *PostgresMomentRepository) InsertRefined(ctx context.Context, parentID string, refined Moment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to begin refined moment transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM moments WHERE parent_id = $1 AND is_refined = true`, parentID); err != nil {
		return pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to delete prior refined moment", err)
	}
	refined.IsRefined = true
	refined.ParentID = parentID
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO moments (id, video_id, start_time, end_time, title, is_refined, parent_id, local_clip_path, cloud_clip_path, generation_config_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		refined.ID, refined.VideoID, refined.StartTime, refined.EndTime, refined.Title, refined.IsRefined, refined.ParentID, refined.LocalClipPath, refined.CloudClipPath, refined.GenerationConfigID); err != nil {
		return pipelineerrors.New(pipelineerrors.StoreUnavailable, "failed to insert refined moment", err)
	}
	return tx.Commit()
}
