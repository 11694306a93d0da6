package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	p := Params{
		User: "booking",
		Pass: "s3cret",
		Host: "db.internal",
		Port: "3306",
		Name: "ticketing",
	}
	assert.Equal(t,
		"booking:s3cret@tcp(db.internal:3306)/ticketing?charset=utf8mb4&parseTime=true&loc=UTC",
		dsn(p))
}

func TestDSNWithoutPassword(t *testing.T) {
	p := Params{
		User: "booking",
		Host: "localhost",
		Port: "3306",
		Name: "ticketing",
	}
	assert.Equal(t,
		"booking@tcp(localhost:3306)/ticketing?charset=utf8mb4&parseTime=true&loc=UTC",
		dsn(p))
}
