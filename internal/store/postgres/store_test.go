package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evalset/internal/domain"
)

func TestTableIdent(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "reviews", want: `"reviews"`},
		{name: "eval.records", want: `"eval"."records"`},
		{name: `odd"name`, want: `"odd""name"`},
		{name: "", wantErr: true},
		{name: "a..b", wantErr: true},
		{name: "a.b.c", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ident, err := tableIdent(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ident.Sanitize())
		})
	}
}

func TestRecordSinkRef(t *testing.T) {
	sink, err := (&Store{}).SinkFactory("eval.records")("run-3")
	require.NoError(t, err)
	assert.Equal(t, domain.DatasetRef{
		Sink:             domain.BackendPostgres,
		Location:         "eval.records",
		FailuresLocation: "eval.records_failures",
		RunID:            "run-3",
	}, sink.Ref())

	_, err = (&Store{}).SinkFactory("a..b")("run-3")
	assert.Error(t, err)
}

func TestWithSuffix(t *testing.T) {
	base := pgx.Identifier{"eval", "records"}
	got := withSuffix(base, "_failures")
	assert.Equal(t, `"eval"."records_failures"`, got.Sanitize())
	assert.Equal(t, `"eval"."records"`, base.Sanitize(), "base is not modified")
}

func TestDecodeFields(t *testing.T) {
	fields, err := decodeFields([]byte(`{"title":"Loud","rating":4,"score":4.5,"verified":false,"tags":["a"],"meta":{"x":1},"note":null}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"title":    "Loud",
		"rating":   "4",
		"score":    "4.5",
		"verified": "false",
	}, fields)

	fields, err = decodeFields(nil)
	require.NoError(t, err)
	assert.Empty(t, fields)

	_, err = decodeFields([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestOpen_RequiresURL(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestOpen_BadURL(t *testing.T) {
	_, err := Open(context.Background(), Config{URL: "postgres://%zz"})
	assert.Error(t, err)
}
