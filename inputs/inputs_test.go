package inputs

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/buildercred/zkcred/types"
	"github.com/buildercred/zkcred/util"
)

func testClaims() *CredentialClaims {
	return &CredentialClaims{
		Subject:  util.RandomBytes(20),
		Secret:   util.RandomBytes(32),
		Values:   []string{"3", "12500"},
		IssuedAt: 1724968800,
	}
}

func TestEncodeDeterministic(t *testing.T) {
	c := qt.New(t)
	claims := testClaims()

	a, err := Encode(types.CircuitVerifiedBuilder, claims)
	c.Assert(err, qt.IsNil)
	b, err := Encode(types.CircuitVerifiedBuilder, claims)
	c.Assert(err, qt.IsNil)
	c.Assert(string(a), qt.Equals, string(b))

	signals := map[string]any{}
	c.Assert(json.Unmarshal(a, &signals), qt.IsNil)
	for _, name := range []string{"subject", "commitment", "nullifier", "values", "issuedAt"} {
		_, ok := signals[name]
		c.Assert(ok, qt.IsTrue, qt.Commentf("missing signal %s", name))
	}
}

func TestEncodeCircuitDomainSeparation(t *testing.T) {
	c := qt.New(t)
	claims := testClaims()

	a, err := Encode(types.CircuitVerifiedBuilder, claims)
	c.Assert(err, qt.IsNil)
	b, err := Encode(types.CircuitGrantTrackRecord, claims)
	c.Assert(err, qt.IsNil)
	// the circuit tag feeds the commitment, so inputs differ per circuit
	c.Assert(string(a), qt.Not(qt.Equals), string(b))
}

func TestNullifierBindsSecret(t *testing.T) {
	c := qt.New(t)
	subject := util.RandomBytes(20)

	_, n1, err := CommitmentAndNullifier(types.CircuitTeamAttestation, subject, util.RandomBytes(32))
	c.Assert(err, qt.IsNil)
	_, n2, err := CommitmentAndNullifier(types.CircuitTeamAttestation, subject, util.RandomBytes(32))
	c.Assert(err, qt.IsNil)
	c.Assert(n1.String(), qt.Not(qt.Equals), n2.String())
}

func TestEncodeRejectsBadClaims(t *testing.T) {
	c := qt.New(t)

	_, err := Encode(types.CircuitID("bogus"), testClaims())
	c.Assert(err, qt.IsNotNil)

	_, err = Encode(types.CircuitVerifiedBuilder, nil)
	c.Assert(err, qt.IsNotNil)

	claims := testClaims()
	claims.Secret = nil
	_, err = Encode(types.CircuitVerifiedBuilder, claims)
	c.Assert(err, qt.IsNotNil)

	claims = testClaims()
	claims.Values = []string{"not-a-number"}
	_, err = Encode(types.CircuitVerifiedBuilder, claims)
	c.Assert(err, qt.IsNotNil)
}
