package repository

import (
	"fmt"
	"time"
)

// Identifiers are left unquoted so Postgres folds them to lower case while
// SQLite and MySQL keep the original spelling.
const (
	insertOrderSQL = "INSERT INTO BadgerBakeryOrder(username, numMuffin, numDonut, numPie, numCupcake, numCroissant) VALUES(%s, %s, %s, %s, %s, %s)"
	listOrdersSQL  = "SELECT id, username, numMuffin, numDonut, numPie, numCupcake, numCroissant, placedOn FROM BadgerBakeryOrder ORDER BY id DESC LIMIT %s"
	returningSQL   = " RETURNING id, placedOn"
	placedOnSQL    = "SELECT placedOn FROM BadgerBakeryOrder WHERE id = ?"
)

func insertQuery(placeholder func(n int) string) string {
	args := make([]any, 6)
	for i := range args {
		args[i] = placeholder(i + 1)
	}
	return fmt.Sprintf(insertOrderSQL, args...)
}

func listQuery(placeholder func(n int) string) string {
	return fmt.Sprintf(listOrdersSQL, placeholder(1))
}

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }
func questionPlaceholder(int) string { return "?" }

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
}

// dbTime scans timestamps that drivers return either as time.Time or as
// text (SQLite CURRENT_TIMESTAMP, MySQL without parseTime).
type dbTime struct {
	time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}
