package response

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/barswitch/pkg/switcher"
)

func TestMarshalCollections(t *testing.T) {
	b, err := MarshalCollections(&switcher.Snapshot{Names: []string{"Default", "Work"}, Current: "Work"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"bars":["Default","Work"],"current":"Work"}`, string(b))

	b, err = MarshalCollections(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bars":[],"current":""}`, string(b))
}

func TestMarshalResult(t *testing.T) {
	b, err := MarshalResult(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(b))

	verr := fmt.Errorf("create: %w", &switcher.ValidationError{Name: "a:b", Reason: switcher.ReasonColon})
	b, err = MarshalResult(verr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"The name can't contain a colon.","kind":"validation"}`, string(b))
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&switcher.ValidationError{Reason: switcher.ReasonTaken}, KindValidation},
		{fmt.Errorf("select: %w", switcher.ErrUnknownCollection), KindUnknown},
		{fmt.Errorf("select: %w", switcher.ErrInconsistentState), KindInconsistent},
		{switcher.ErrNotBootstrapped, KindUnavailable},
		{errors.New("disk on fire"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "%v", tt.err)
	}
}
