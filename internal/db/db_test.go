package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaDefinesJobTables(t *testing.T) {
	schema := Schema()
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS pipeline_jobs")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS job_stages")
	assert.Contains(t, schema, "PRIMARY KEY (job_id, step)")
}

func TestMarshalResult(t *testing.T) {
	data, err := marshalResult(nil)
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestCloseWithoutPool(t *testing.T) {
	db := &DB{}
	assert.NotPanics(t, db.Close)
}
