package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeDigestDeterminism(t *testing.T) {
	ref := RecordRef{Type: "article", ID: "42"}
	pending := Fields{"body": IRString("new"), "published": IRBool(true)}
	stored := Fields{"views": IRInt(10)}

	d1, err := ChangeDigest(ref, pending, stored)
	require.NoError(t, err)
	d2, err := ChangeDigest(ref, pending.Clone(), stored.Clone())
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "ChangeDigest must be deterministic")
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestChangeDigestChangesWithInput(t *testing.T) {
	ref := RecordRef{Type: "article", ID: "42"}
	pending := Fields{"body": IRString("new")}

	base := MustChangeDigest(ref, pending, nil)

	assert.NotEqual(t, base, MustChangeDigest(RecordRef{Type: "article", ID: "43"}, pending, nil))
	assert.NotEqual(t, base, MustChangeDigest(ref, Fields{"body": IRString("other")}, nil))
	assert.NotEqual(t, base, MustChangeDigest(ref, nil, pending), "pending and stored are distinct")
}

func TestChangeDigestNilEqualsEmpty(t *testing.T) {
	ref := RecordRef{Type: "article", ID: "1"}
	assert.Equal(t, MustChangeDigest(ref, nil, nil), MustChangeDigest(ref, Fields{}, Fields{}))
}

func TestChangeDigestUnicodeForm(t *testing.T) {
	ref := RecordRef{Type: "article", ID: "1"}
	assert.Equal(t,
		MustChangeDigest(ref, Fields{"title": IRString("cafe\u0301")}, nil),
		MustChangeDigest(ref, Fields{"title": IRString("caf\u00e9")}, nil),
	)
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain("approval/changeset/v1", data), hashWithDomain("approval/changeset/v2", data))
}
