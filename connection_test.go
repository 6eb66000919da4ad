package goiec61850

import (
	"testing"
	"time"

	"github.com/mms61850/goiec61850/osi/mms"
	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:                  "Idle",
		StateTcpConnecting:         "TcpConnecting",
		StateCotpHandshake:         "CotpHandshake",
		StateSessionHandshake:      "SessionHandshake",
		StatePresentationHandshake: "PresentationHandshake",
		StateAcseHandshake:         "AcseHandshake",
		StateMmsInitiate:           "MmsInitiate",
		StateEstablished:           "Established",
		StateClosing:               "Closing",
		StateClosed:                "Closed",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{Host: "10.0.0.1"}.withDefaults()
	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, []byte{0, 1}, cfg.LocalTSelector)
	assert.Equal(t, []byte{0, 1}, cfg.RemoteTSelector)
	assert.Equal(t, []byte{0, 0, 0, 1}, cfg.LocalPresentationSelector)
	assert.Equal(t, []byte{0, 0, 0, 1}, cfg.RemotePresentationSelector)
	assert.Equal(t, defaultMmsMaxServices, cfg.MmsMaxServices)
	assert.Equal(t, 2*time.Second, cfg.CotpTimeout)
	assert.Equal(t, 2*time.Second, cfg.SessionTimeout)
	assert.Equal(t, 2*time.Second, cfg.PresentationTimeout)
	assert.Equal(t, 2*time.Second, cfg.AcseTimeout)
	assert.Equal(t, 3*time.Second, cfg.MmsInitiateTimeout)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.NotNil(t, cfg.Logger)
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Host:                       "10.0.0.1",
		Port:                       1102,
		LocalTSelector:             []byte{9},
		RemoteTSelector:            []byte{8},
		LocalPresentationSelector:  []byte{1, 2, 3, 4},
		RemotePresentationSelector: []byte{5, 6, 7, 8},
		LocalAPTitle:               []byte{0x06, 0x02, 0x51, 0x01},
		RemoteAPTitle:              []byte{0x06, 0x02, 0x51, 0x02},
		MmsMaxServices:             9,
		CotpTimeout:                time.Second,
		SessionTimeout:             time.Second,
		PresentationTimeout:        time.Second,
		AcseTimeout:                time.Second,
		MmsInitiateTimeout:         time.Second,
		ConnectTimeout:             time.Second,
		RequestTimeout:             2 * time.Second,
	}.withDefaults()
	assert.Equal(t, 1102, cfg.Port)
	assert.Equal(t, []byte{9}, cfg.LocalTSelector)
	assert.Equal(t, []byte{8}, cfg.RemoteTSelector)
	assert.Equal(t, []byte{1, 2, 3, 4}, cfg.LocalPresentationSelector)
	assert.Equal(t, []byte{5, 6, 7, 8}, cfg.RemotePresentationSelector)
	assert.Equal(t, 9, cfg.MmsMaxServices)
	assert.Equal(t, time.Second, cfg.CotpTimeout)
	assert.Equal(t, time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
}

func TestConfigInitiateOptionsWithMaxServicesDefaultsToFive(t *testing.T) {
	cfg := Config{Host: "10.0.0.1"}.withDefaults()
	req := mms.NewInitiateRequest(cfg.initiateOptionsWithMaxServices()...)
	assert.EqualValues(t, defaultMmsMaxServices, req.ProposedMaxServOutstandingCalling)
	assert.EqualValues(t, defaultMmsMaxServices, req.ProposedMaxServOutstandingCalled)
}

func TestConfigInitiateOptionsWithMaxServicesCanBeOverriddenByInitiateOptions(t *testing.T) {
	cfg := Config{
		Host:           "10.0.0.1",
		MmsMaxServices: 9,
		InitiateOptions: []mms.InitiateRequestOption{
			mms.WithProposedMaxServOutstandingCalling(20),
		},
	}.withDefaults()
	req := mms.NewInitiateRequest(cfg.initiateOptionsWithMaxServices()...)
	assert.EqualValues(t, 20, req.ProposedMaxServOutstandingCalling)
	assert.EqualValues(t, 9, req.ProposedMaxServOutstandingCalled)
}

func TestNewConnectionStateDefaultsToIdleBeforeConnect(t *testing.T) {
	c := &Connection{state: StateIdle}
	assert.Equal(t, StateIdle, c.State())
}
