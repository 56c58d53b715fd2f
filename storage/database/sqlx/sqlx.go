// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
)

const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

// validIDs drops the values that are not UUIDs; they cannot match a uuid column.
func validIDs(ids ...string) pq.StringArray {
	valid := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// orderBy renders orderings whose field is a key of columns, followed by tieBreak.
func orderBy(orderings []core.DBOrdering, columns map[string]string, tieBreak string) string {
	parts := make([]string, 0, len(orderings)+1)
	for _, ord := range orderings {
		if col, ok := columns[ord.Field]; ok {
			parts = append(parts, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if tieBreak != "" {
		parts = append(parts, tieBreak)
	}
	if len(parts) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern escapes s for a "contains" LIKE match.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func prefixPattern(s string) string {
	return likeEscaper.Replace(s) + "%"
}

// where accumulates AND-ed conditions along with their positional arguments.
type where struct {
	conds []string
	args  []interface{}
}

// arg registers v and returns its placeholder.
func (w *where) arg(v interface{}) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *where) and(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// limit appends the LIMIT/OFFSET clause of page.
func (w *where) limit(page core.Page) string {
	return " LIMIT " + w.arg(page.Limit) + " OFFSET " + w.arg(page.Offset())
}

// inTx runs fn within a transaction, rolled back when fn fails.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			// the connection is in an unknown state
			return core.NewShutdownError(fmt.Sprintf("rolling back transaction: %v (after %v)", rbErr, err))
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func rowsAffected(res interface{ RowsAffected() (int64, error) }) (int64, error) {
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "reading rows affected")
}
