package pipeline

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `date,quarter,department,day,team,targeted_productivity,smv,wip,over_time,incentive,idle_time,idle_men,no_of_style_change,no_of_workers,actual_productivity
1/1/2015,Quarter1,sweing,Thursday,8,0.8,26.16,1108,7080,98,0,0,0,59,0.940725424
1/1/2015,Quarter1,finishing ,Thursday,1,0.75,3.94,,960,0,0,0,0,8,0.8865
1/1/2015,Quarter1,sweing,Thursday,11,0.8,11.41,968,3660,50,0,0,0,30.5,0.800570492
1/1/2015,Quarter1,sewing,Thursday,12,0.8,11.41,968,3660,,0,0,0,30.5,0.7
`

func TestLoadCSV(t *testing.T) {
	records, err := LoadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "sweing", records[0].Department)
	assert.Equal(t, 98.0, records[0].Incentive)
	assert.InDelta(t, 0.940725424, records[0].ActualProductivity, 1e-12)
	assert.Equal(t, "finishing ", records[1].Department)
	assert.True(t, math.IsNaN(records[3].Incentive))
}

func TestLoadCSVMissingColumn(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("department,actual_productivity\nsewing,0.5\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), "incentive")

	_, err = LoadCSV(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestOpenDecodesCharset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latin1.csv")
	data := []byte("department,incentive,actual_productivity\ncaf\xe9,1,0.5\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	records, err := Load(context.Background(), path, "windows-1252")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "café", records[0].Department)

	_, err = Load(context.Background(), path, "klingon")
	require.Error(t, err)
}

func TestLoadRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data.csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	records, err := Load(context.Background(), srv.URL+"/data.csv", "utf-8")
	require.NoError(t, err)
	assert.Len(t, records, 4)

	_, err = Load(context.Background(), srv.URL+"/missing.csv", "utf-8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), "")
	require.Error(t, err)
}
