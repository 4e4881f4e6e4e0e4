package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/jmoiron/sqlx"
	"github.com/playpool/billiards/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidPIN         = errors.New("PIN must be exactly 4 digits")
	ErrInvalidName        = errors.New("display name must be 3-20 letters, digits or underscores")
	ErrNameTaken          = errors.New("display name already taken")
	ErrInvalidCredentials = errors.New("invalid name or PIN")
	ErrInvalidToken       = errors.New("invalid token")
	ErrPlayerBlocked      = errors.New("player is blocked")
)

var (
	pinPattern  = regexp.MustCompile(`^[0-9]{4}$`)
	namePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)
)

// HashPIN hashes a 4-digit PIN with bcrypt.
func HashPIN(pin string) (string, error) {
	if !pinPattern.MatchString(pin) {
		return "", ErrInvalidPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPIN reports whether pin matches the stored hash.
func CheckPIN(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// IssueToken signs an HS256 JWT carrying the player id.
func IssueToken(secret string, playerID int, displayName string, ttl time.Duration) (string, time.Time, error) {
	exp := time.Now().Add(ttl)
	claims := jwt.MapClaims{
		"player_id":    playerID,
		"display_name": displayName,
		"exp":          jwt.NewNumericDate(exp).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseToken validates a JWT and returns its player id.
func ParseToken(secret, token string) (int, error) {
	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	playerIDf, ok := claims["player_id"].(float64)
	if !ok || playerIDf <= 0 {
		return 0, ErrInvalidToken
	}
	return int(playerIDf), nil
}

// Register creates a player with a hashed PIN.
func Register(db *sqlx.DB, displayName, pin string) (*models.Player, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	name := strings.TrimSpace(displayName)
	if !namePattern.MatchString(name) {
		return nil, ErrInvalidName
	}
	hash, err := HashPIN(pin)
	if err != nil {
		return nil, err
	}

	var exists bool
	if err := db.Get(&exists, `SELECT EXISTS (SELECT 1 FROM players WHERE LOWER(display_name)=LOWER($1))`, name); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrNameTaken
	}

	var p models.Player
	err = db.Get(&p, `INSERT INTO players (display_name, pin_hash, created_at, is_active) VALUES ($1, $2, NOW(), true)
		RETURNING id, display_name, pin_hash, created_at, total_games_played, total_games_won, is_active, is_blocked, last_active`, name, hash)
	if err != nil {
		return nil, err
	}
	log.Printf("[AUTH] Registered player %d (%s)", p.ID, p.DisplayName)
	return &p, nil
}

// Login checks a name and PIN against the players table.
func Login(db *sqlx.DB, displayName, pin string) (*models.Player, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	p, err := findByName(db, strings.TrimSpace(displayName))
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !p.PINHash.Valid || !CheckPIN(p.PINHash.String, pin) {
		log.Printf("[AUTH] Failed login for %s", displayName)
		return nil, ErrInvalidCredentials
	}
	if p.IsBlocked {
		return nil, ErrPlayerBlocked
	}
	if _, err := db.Exec(`UPDATE players SET last_active=NOW() WHERE id=$1`, p.ID); err != nil {
		log.Printf("[AUTH] Failed to update last_active for %d: %v", p.ID, err)
	}
	return p, nil
}

// GetPlayer loads a player by id.
func GetPlayer(db *sqlx.DB, id int) (*models.Player, error) {
	var p models.Player
	err := db.Get(&p, `SELECT id, display_name, pin_hash, created_at, total_games_played, total_games_won, is_active, is_blocked, last_active FROM players WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func findByName(db *sqlx.DB, name string) (*models.Player, error) {
	var p models.Player
	err := db.Get(&p, `SELECT id, display_name, pin_hash, created_at, total_games_played, total_games_won, is_active, is_blocked, last_active FROM players WHERE LOWER(display_name)=LOWER($1)`, name)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
