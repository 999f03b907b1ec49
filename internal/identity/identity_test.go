package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveAnonymousByDefault(t *testing.T) {
	r := New()
	id := r.Resolve("", "")
	require.Equal(t, LevelAnonymous, id.TrustLevel)
	require.Empty(t, id.AgentID)
}

func TestResolveByAPIKey(t *testing.T) {
	r := New()
	r.RegisterAPIKey("key-123", "agent-1")

	id := r.Resolve("key-123", "")
	require.Equal(t, "agent-1", id.AgentID)
}

func TestResolveByAgentIDHeader(t *testing.T) {
	r := New()
	id := r.Resolve("", "agent-xyz")
	require.Equal(t, "agent-xyz", id.AgentID)
}

func TestScoreClimbsWithSuccessAndEndorsements(t *testing.T) {
	r := New()
	for i := 0; i < 50; i++ {
		r.RecordActivity("agent-1", "success", "cap.price.lookup.v1")
	}
	for i := 0; i < 5; i++ {
		r.RecordActivity("agent-1", "endorsement", "")
	}

	score := r.Score("agent-1")
	require.Greater(t, score, thresholdVerified)
}

func TestViolationPenalizesScore(t *testing.T) {
	r := New()
	for i := 0; i < 50; i++ {
		r.RecordActivity("agent-1", "success", "cap.a.v1")
	}
	before := r.Score("agent-1")

	r.RecordActivity("agent-1", "violation", "")
	after := r.Score("agent-1")

	require.Less(t, after, before)
}

func TestHasAccessRespectsThresholds(t *testing.T) {
	r := New()
	require.False(t, r.HasAccess("agent-1", LevelVerified))

	for i := 0; i < 10; i++ {
		r.RecordActivity("agent-1", "endorsement", "")
	}
	require.True(t, r.HasAccess("agent-1", LevelVerified))
}

func TestIssueAndVerifyToken(t *testing.T) {
	key := []byte("test-jwt-key")
	token, err := IssueToken(key, "agent-1", []string{"cap.cspl.wrap.v1"}, time.Minute)
	require.NoError(t, err)

	v := NewTokenVerifier(key)
	claims, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "agent-1", claims.AgentID)
	require.True(t, claims.GrantsCapability("cap.cspl.wrap.v1"))
	require.False(t, claims.GrantsCapability("cap.other.v1"))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	token, err := IssueToken([]byte("key-a"), "agent-1", nil, time.Minute)
	require.NoError(t, err)

	v := NewTokenVerifier([]byte("key-b"))
	_, err = v.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	key := []byte("test-jwt-key")
	token, err := IssueToken(key, "agent-1", nil, -time.Minute)
	require.NoError(t, err)

	v := NewTokenVerifier(key)
	_, err = v.Verify(token)
	require.Error(t, err)
}
