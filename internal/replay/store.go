package replay

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
)

var ErrGameNotFound = errors.New("replay: game not found")

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	player1       TEXT NOT NULL,
	player2       TEXT NOT NULL,
	table_spec    TEXT NOT NULL,
	params        TEXT NOT NULL,
	require_rail  INTEGER NOT NULL DEFAULT 0,
	turn_limit_ms INTEGER NOT NULL DEFAULT 0,
	frame_dt      REAL NOT NULL,
	frames        INTEGER NOT NULL DEFAULT 0,
	winner        INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL,
	finished_at   DATETIME
);

CREATE TABLE IF NOT EXISTS actions (
	game_id      INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	kind         TEXT NOT NULL,
	player       INTEGER NOT NULL,
	after_frames INTEGER NOT NULL,
	angle        REAL NOT NULL DEFAULT 0,
	power        REAL NOT NULL DEFAULT 0,
	spin_x       REAL NOT NULL DEFAULT 0,
	spin_y       REAL NOT NULL DEFAULT 0,
	x            REAL NOT NULL DEFAULT 0,
	y            REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (game_id, seq)
);

CREATE TABLE IF NOT EXISTS turns (
	game_id     INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	turn_number INTEGER NOT NULL,
	frame       INTEGER NOT NULL,
	result      TEXT NOT NULL,
	PRIMARY KEY (game_id, turn_number)
);
`

// Store keeps recorded games in a local SQLite file.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the replay database at path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open replay db: %w", err)
	}
	// One writer; sqlite serialises anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create replay schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Setup is everything needed to rebuild the starting position of a game.
type Setup struct {
	Player1 string
	Player2 string
	Table   physics.TableSpec
	Params  physics.Params
	Options rules.Options
	FrameDT float64 // seconds per frame
}

// Game is one row of the games table.
type Game struct {
	ID          int64        `db:"id" json:"id"`
	Player1     string       `db:"player1" json:"player1"`
	Player2     string       `db:"player2" json:"player2"`
	TableSpec   string       `db:"table_spec" json:"-"`
	ParamsJSON  string       `db:"params" json:"-"`
	RequireRail bool         `db:"require_rail" json:"require_rail"`
	TurnLimitMS int64        `db:"turn_limit_ms" json:"turn_limit_ms"`
	FrameDT     float64      `db:"frame_dt" json:"frame_dt"`
	Frames      int          `db:"frames" json:"frames"`
	Winner      int          `db:"winner" json:"winner"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	FinishedAt  sql.NullTime `db:"finished_at" json:"-"`
}

// Setup decodes the stored starting conditions.
func (g *Game) Setup() (Setup, error) {
	su := Setup{
		Player1: g.Player1,
		Player2: g.Player2,
		Options: rules.Options{
			TurnTimeLimit:           time.Duration(g.TurnLimitMS) * time.Millisecond,
			RequireRailAfterContact: g.RequireRail,
		},
		FrameDT: g.FrameDT,
	}
	if err := json.Unmarshal([]byte(g.TableSpec), &su.Table); err != nil {
		return Setup{}, fmt.Errorf("decode table of game %d: %w", g.ID, err)
	}
	if err := json.Unmarshal([]byte(g.ParamsJSON), &su.Params); err != nil {
		return Setup{}, fmt.Errorf("decode params of game %d: %w", g.ID, err)
	}
	return su, nil
}

type ActionKind string

const (
	ActionShot    ActionKind = "shot"
	ActionPlace   ActionKind = "place"
	ActionForfeit ActionKind = "forfeit"
)

// Action is a player input, stamped with the number of frames ticked since
// the previous action.
type Action struct {
	GameID      int64      `db:"game_id"`
	Seq         int        `db:"seq"`
	Kind        ActionKind `db:"kind"`
	Player      int        `db:"player"`
	AfterFrames int        `db:"after_frames"`
	Angle       float64    `db:"angle"`
	Power       float64    `db:"power"`
	SpinX       float64    `db:"spin_x"`
	SpinY       float64    `db:"spin_y"`
	X           float64    `db:"x"`
	Y           float64    `db:"y"`
}

// Turn is a recorded turn result and the frame it was produced on.
type Turn struct {
	GameID     int64  `db:"game_id"`
	TurnNumber int    `db:"turn_number"`
	Frame      int    `db:"frame"`
	Result     string `db:"result"`
}

func (s *Store) createGame(su Setup) (int64, error) {
	spec, err := json.Marshal(su.Table)
	if err != nil {
		return 0, err
	}
	params, err := json.Marshal(su.Params)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`
		INSERT INTO games (player1, player2, table_spec, params, require_rail, turn_limit_ms, frame_dt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		su.Player1, su.Player2, string(spec), string(params),
		su.Options.RequireRailAfterContact, su.Options.TurnTimeLimit.Milliseconds(),
		su.FrameDT, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert game: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) insertAction(a Action) error {
	_, err := s.db.NamedExec(`
		INSERT INTO actions (game_id, seq, kind, player, after_frames, angle, power, spin_x, spin_y, x, y)
		VALUES (:game_id, :seq, :kind, :player, :after_frames, :angle, :power, :spin_x, :spin_y, :x, :y)`, a)
	if err != nil {
		return fmt.Errorf("insert action %d: %w", a.Seq, err)
	}
	return nil
}

func (s *Store) insertTurn(gameID int64, frame int, res rules.TurnResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO turns (game_id, turn_number, frame, result) VALUES (?, ?, ?, ?)
		ON CONFLICT(game_id, turn_number) DO UPDATE SET frame = excluded.frame, result = excluded.result`,
		gameID, res.TurnNumber, frame, string(data))
	if err != nil {
		return fmt.Errorf("insert turn %d: %w", res.TurnNumber, err)
	}
	return nil
}

func (s *Store) finishGame(gameID int64, frames, winner int) error {
	_, err := s.db.Exec(`UPDATE games SET frames = ?, winner = ?, finished_at = ? WHERE id = ?`,
		frames, winner, time.Now().UTC(), gameID)
	return err
}

// Games lists recorded games, newest first.
func (s *Store) Games(limit int) ([]Game, error) {
	games := []Game{}
	err := s.db.Select(&games, `SELECT * FROM games ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

// Game loads a single game row.
func (s *Store) Game(id int64) (*Game, error) {
	var g Game
	err := s.db.Get(&g, `SELECT * FROM games WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game %d: %w", id, err)
	}
	return &g, nil
}

func (s *Store) Actions(gameID int64) ([]Action, error) {
	actions := []Action{}
	err := s.db.Select(&actions, `SELECT * FROM actions WHERE game_id = ? ORDER BY seq`, gameID)
	if err != nil {
		return nil, fmt.Errorf("load actions of game %d: %w", gameID, err)
	}
	return actions, nil
}

func (s *Store) Turns(gameID int64) ([]Turn, error) {
	turns := []Turn{}
	err := s.db.Select(&turns, `SELECT * FROM turns WHERE game_id = ? ORDER BY turn_number`, gameID)
	if err != nil {
		return nil, fmt.Errorf("load turns of game %d: %w", gameID, err)
	}
	return turns, nil
}

// Delete removes a game and everything recorded for it.
func (s *Store) Delete(gameID int64) error {
	res, err := s.db.Exec(`DELETE FROM games WHERE id = ?`, gameID)
	if err != nil {
		return fmt.Errorf("delete game %d: %w", gameID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGameNotFound
	}
	log.Printf("[REPLAY] Deleted game %d", gameID)
	return nil
}
