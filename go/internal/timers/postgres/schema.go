package postgres

// schema is applied on startup. room_revisions serialises writers per room
// and supplies the revision reported to watchers.
const schema = `
CREATE TABLE IF NOT EXISTS room_revisions (
	room     TEXT PRIMARY KEY,
	revision BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS room_timers (
	room        TEXT NOT NULL,
	id          TEXT NOT NULL,
	entity_name TEXT NOT NULL,
	payload     JSONB NOT NULL,
	revision    BIGINT NOT NULL,
	PRIMARY KEY (room, id)
);

CREATE INDEX IF NOT EXISTS idx_room_timers_entity ON room_timers (room, entity_name);
`

const bumpRevisionSQL = `
INSERT INTO room_revisions (room, revision) VALUES ($1, 1)
ON CONFLICT (room) DO UPDATE SET revision = room_revisions.revision + 1
RETURNING revision`

const upsertTimerSQL = `
INSERT INTO room_timers (room, id, entity_name, payload, revision)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (room, id) DO UPDATE
SET entity_name = EXCLUDED.entity_name,
    payload = EXCLUDED.payload,
    revision = EXCLUDED.revision`

const updateTimerSQL = `
UPDATE room_timers
SET entity_name = $3, payload = $4, revision = $5
WHERE room = $1 AND id = $2`

const (
	deleteRoomSQL      = `DELETE FROM room_timers WHERE room = $1`
	deleteByIDsSQL     = `DELETE FROM room_timers WHERE room = $1 AND id = ANY($2)`
	supersedeEntitySQL = `DELETE FROM room_timers WHERE room = $1 AND entity_name = $2 AND id <> $3`
	notifySQL          = `SELECT pg_notify($1, $2)`
	selectRevisionSQL  = `SELECT revision FROM room_revisions WHERE room = $1`
	selectPayloadsSQL  = `SELECT payload FROM room_timers WHERE room = $1`
)
