package canonical

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	in := map[string]interface{}{"b": 1, "a": 2, "c": map[string]interface{}{"z": 1, "y": 2}}
	out, err := Marshal(in)
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1,"c":{"y":2,"z":1}}`, string(out))
}

func TestMarshalPreservesArrayOrder(t *testing.T) {
	in := map[string]interface{}{"items": []interface{}{3, 1, 2}}
	out, err := Marshal(in)
	require.NoError(t, err)
	require.Equal(t, `{"items":[3,1,2]}`, string(out))
}

func TestMarshalRejectsNaN(t *testing.T) {
	type bad struct {
		V float64 `json:"v"`
	}
	// json.Marshal rejects NaN before the number-atom guard sees it; Marshal
	// reports that failure as a CANONICALIZATION_ERROR.
	_, err := Marshal(bad{V: math.NaN()})
	require.Error(t, err)
	var ce *ErrCanonicalization
	require.ErrorAs(t, err, &ce)
}

func TestRequestHashDeterministic(t *testing.T) {
	in1 := map[string]interface{}{"a": 1, "b": "x"}
	in2 := map[string]interface{}{"b": "x", "a": 1}
	h1, err := RequestHash(in1)
	require.NoError(t, err)
	h2, err := RequestHash(in2)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Contains(t, h1, "sha256:")
}

func TestArtifactHashExcludesVolatileFields(t *testing.T) {
	v1 := map[string]interface{}{"created_at": "2026-01-01T00:00:00Z", "run_id": "r1", "status": "READY"}
	v2 := map[string]interface{}{"created_at": "2026-01-02T00:00:00Z", "run_id": "r1", "status": "READY"}
	h1, err := ArtifactHash(v1, "created_at")
	require.NoError(t, err)
	h2, err := ArtifactHash(v2, "created_at")
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestCanonicalRoundTripIdempotent(t *testing.T) {
	in := map[string]interface{}{"a": []interface{}{1, 2, map[string]interface{}{"z": 1, "a": 2}}}
	out1, err := Marshal(in)
	require.NoError(t, err)

	var decoded interface{}
	require.NoError(t, json.Unmarshal(out1, &decoded))
	out2, err := Marshal(decoded)
	require.NoError(t, err)
	require.Equal(t, string(out1), string(out2))
}
