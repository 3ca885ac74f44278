package wintap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/codec"
	"entitygraph/pkg/models"
)

var day = models.DayPartition("20240101")

func TestParseProcessRecord(t *testing.T) {
	data := []byte(`{
		"PidHash": "P1",
		"ParentPidHash": "P0",
		"Hostname": "HOST1",
		"PID": "4242",
		"ProcessName": "svchost.exe",
		"CommandLine": "svchost.exe -k netsvcs",
		"EventTime": 133485408001234567,
		"ActivityType": "start"
	}`)
	ev, err := Parse(models.DomainProcess, day, data)
	require.NoError(t, err)
	assert.Equal(t, models.DomainProcess, ev.Domain)
	assert.Equal(t, "P1", ev.Text(models.FieldPidHash))
	assert.Equal(t, "svchost.exe -k netsvcs", ev.Text(models.FieldProcessArgs))
	assert.Equal(t, models.KindNumber, ev.Get(models.FieldPID).Kind)
	assert.Equal(t, "START", ev.ActivityType())

	ticks, ok := ev.Get(models.FieldEventTime).Uint64()
	require.True(t, ok)
	assert.Equal(t, uint64(133485408001234567), ticks)
}

func TestCanonicalNameBeatsAlias(t *testing.T) {
	data := []byte(`{"ProcessArgs": "canonical", "CommandLine": "alias", "Args": "other"}`)
	ev, err := Parse(models.DomainProcess, day, data)
	require.NoError(t, err)
	assert.Equal(t, "canonical", ev.Text(models.FieldProcessArgs))
}

func TestParseTextEventTime(t *testing.T) {
	data := []byte(`{"PidHash": "P1", "EventTime": "2024-01-01 00:00:00.123456"}`)
	ev, err := Parse(models.DomainFile, day, data)
	require.NoError(t, err)
	ticks, ok := ev.Get(models.FieldEventTime).Uint64()
	require.True(t, ok)
	want := time.Date(2024, 1, 1, 0, 0, 0, 123456000, time.UTC)
	assert.True(t, want.Equal(codec.TicksTime(ticks)))
}

func TestParseNestedAndEmpty(t *testing.T) {
	data := []byte(`{"pid_hash": "P1", "Process": {"Name": "cmd.exe", "Path": ""}, "UserName": null}`)
	ev, err := Parse(models.DomainProcess, day, data)
	require.NoError(t, err)
	assert.Equal(t, "cmd.exe", ev.Text(models.FieldProcessName))
	assert.True(t, ev.Get(models.FieldProcessPath).IsEmpty())
	assert.True(t, ev.Get(models.FieldUserName).IsEmpty())
}

func TestParseEnvelope(t *testing.T) {
	ev, err := ParseEnvelope(day, []byte(`{"domain": "raw_process_conn_incr", "fields": {"PidHash": "P1", "PacketSize": "100"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.DomainConnIncr, ev.Domain)
	assert.Equal(t, models.KindNumber, ev.Get(models.FieldPacketSize).Kind)

	ev, err = ParseEnvelope(day, []byte(`{"domain": "process_file", "PidHash": "P2"}`))
	require.NoError(t, err)
	assert.Equal(t, models.DomainFile, ev.Domain)
	assert.True(t, ev.Get("domain").IsEmpty())

	_, err = ParseEnvelope(day, []byte(`{"domain": "bogus"}`))
	assert.Error(t, err)
	_, err = Parse(models.DomainProcess, day, []byte(`not json`))
	assert.Error(t, err)
	_, err = Parse(models.DomainProcess, day, []byte(`null`))
	assert.Error(t, err)
}
