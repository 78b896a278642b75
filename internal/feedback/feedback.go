// Package feedback records whether answers were useful.
//
// The log is append-only: entries are never updated or deleted, so the
// table doubles as an audit trail for answer quality over time.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pdiscovery/pdiscovery/internal/log"
)

var (
	// ErrPersistence indicates the feedback row could not be written or read.
	ErrPersistence = errors.New("feedback persistence failed")

	// ErrInvalidEntry indicates required fields are missing.
	ErrInvalidEntry = errors.New("invalid feedback entry")
)

// maxCommentLen bounds free-text comments.
const maxCommentLen = 4000

// Entry is one recorded piece of feedback.
type Entry struct {
	ID        string
	AnswerID  string
	Useful    bool
	Comment   string
	CreatedAt time.Time
}

// DB is the database surface the recorder needs. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Recorder persists feedback entries.
type Recorder struct {
	db     DB
	logger log.Logger
}

// NewRecorder creates a feedback recorder.
func NewRecorder(db DB, logger log.Logger) *Recorder {
	return &Recorder{
		db:     db,
		logger: logger.With("component", "feedback"),
	}
}

// Record appends a feedback entry and returns it with its assigned ID
// and timestamp. The answer ID is stored as given; answers are not
// required to exist, since feedback may arrive after an answer log is
// rotated.
func (r *Recorder) Record(ctx context.Context, answerID string, useful bool, comment string) (*Entry, error) {
	answerID = strings.TrimSpace(answerID)
	if answerID == "" {
		return nil, fmt.Errorf("%w: answer ID is required", ErrInvalidEntry)
	}
	comment = truncateComment(strings.TrimSpace(comment))

	entry := &Entry{
		ID:        uuid.NewString(),
		AnswerID:  answerID,
		Useful:    useful,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO feedback (id, answer_id, useful, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.AnswerID, entry.Useful, entry.Comment, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	r.logger.Info("feedback recorded",
		"feedback_id", entry.ID,
		"answer_id", entry.AnswerID,
		"useful", entry.Useful)
	return entry, nil
}

// truncateComment caps a comment at maxCommentLen bytes, backing up to a
// rune boundary so the stored text stays valid UTF-8.
func truncateComment(comment string) string {
	if len(comment) <= maxCommentLen {
		return comment
	}
	cut := maxCommentLen
	for cut > 0 && !utf8.RuneStart(comment[cut]) {
		cut--
	}
	return comment[:cut]
}

// ListByAnswer returns all feedback for an answer, oldest first.
func (r *Recorder) ListByAnswer(ctx context.Context, answerID string) ([]Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, answer_id, useful, comment, created_at
		 FROM feedback WHERE answer_id = $1 ORDER BY created_at ASC`,
		answerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AnswerID, &e.Useful, &e.Comment, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrPersistence, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return entries, nil
}
