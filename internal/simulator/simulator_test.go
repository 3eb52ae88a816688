package simulator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquadeck/internal/apiclient"
	"aquadeck/internal/model"
)

func setupSim(t *testing.T) (*Server, *apiclient.Client) {
	t.Helper()
	sim := NewServer()
	ts := httptest.NewServer(sim.Router())
	t.Cleanup(ts.Close)
	return sim, apiclient.New(ts.URL)
}

func lightStatus(address string) model.DeviceStatus {
	return model.DeviceStatus{
		Address:    address,
		DeviceType: model.DeviceLight,
		ModelName:  "WRGB II",
		Channels:   []string{"red", "green", "blue", "white"},
	}
}

func TestScanAndConnectFlow(t *testing.T) {
	sim, client := setupSim(t)
	ctx := context.Background()

	statuses, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, statuses)

	sim.AddDiscoverable(lightStatus("AA:11"))

	found, err := client.Scan(ctx, 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "AA:11", found[0].Address)

	statuses, err = client.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, statuses, "discovered devices are not tracked until connected")

	status, err := client.Connect(ctx, "AA:11")
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Greater(t, status.UpdatedAt, 0.0)

	statuses, err = client.Status(ctx)
	require.NoError(t, err)
	require.Contains(t, statuses, "AA:11")
	assert.True(t, statuses["AA:11"].Connected)

	require.NoError(t, client.Disconnect(ctx, "AA:11"))
	statuses, err = client.Status(ctx)
	require.NoError(t, err)
	assert.False(t, statuses["AA:11"].Connected)
}

func TestConnectUnknownDevice(t *testing.T) {
	_, client := setupSim(t)

	_, err := client.Connect(context.Background(), "ZZ:99")
	var reqErr *apiclient.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	assert.Equal(t, "Device not found", reqErr.Detail)
	assert.False(t, reqErr.Retryable())
}

func TestExecuteCommandSuccess(t *testing.T) {
	sim, client := setupSim(t)
	sim.AddDevice(lightStatus("AA:11"))
	ctx := context.Background()

	rec, err := client.ExecuteCommand(ctx, "AA:11", model.CommandRequest{Action: model.ActionTurnOn})
	require.NoError(t, err)
	assert.Equal(t, model.CommandSuccess, rec.Status)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, model.ActionTurnOn, rec.Action)
	assert.Equal(t, 1, rec.Attempts)
	require.NotNil(t, rec.StartedAt)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, model.DefaultTimeoutSeconds, rec.Timeout)

	statuses, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, statuses["AA:11"].Parsed["light_on"])
}

func TestExecuteCommandCarriesArgs(t *testing.T) {
	sim, client := setupSim(t)
	sim.AddDevice(lightStatus("AA:11"))

	rec, err := client.ExecuteCommand(context.Background(), "AA:11", model.CommandRequest{
		Action: model.ActionSetBrightness,
		Args:   model.BrightnessArgs{Brightness: 75, Color: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, model.CommandSuccess, rec.Status)
	assert.Equal(t, float64(75), rec.Args["brightness"])

	statuses, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(75), statuses["AA:11"].Parsed["brightness"])
}

func TestExecuteCommandScriptedFailure(t *testing.T) {
	sim, client := setupSim(t)
	sim.AddDevice(lightStatus("AA:11"))
	sim.ScriptFailure("AA:11", model.ActionTurnOn, "device_busy", "another command is running")
	ctx := context.Background()

	rec, err := client.ExecuteCommand(ctx, "AA:11", model.CommandRequest{Action: model.ActionTurnOn})
	require.NoError(t, err, "failures the backend handled still come back as 200")
	assert.Equal(t, model.CommandFailed, rec.Status)
	assert.Equal(t, "device_busy", rec.ErrorCode)
	assert.Equal(t, "another command is running", rec.Error)

	sim.ScriptFailure("AA:11", model.ActionTurnOn, "", "")
	rec, err = client.ExecuteCommand(ctx, "AA:11", model.CommandRequest{Action: model.ActionTurnOn})
	require.NoError(t, err)
	assert.Equal(t, model.CommandSuccess, rec.Status)
}

func TestExecuteCommandValidation(t *testing.T) {
	sim, client := setupSim(t)
	sim.AddDevice(lightStatus("AA:11"))
	ctx := context.Background()

	cases := []struct {
		name string
		req  model.CommandRequest
	}{
		{"brightness out of range", model.CommandRequest{
			Action: model.ActionSetBrightness,
			Args:   model.BrightnessArgs{Brightness: 150},
		}},
		{"args on a bare action", model.CommandRequest{
			Action: model.ActionTurnOn,
			Args:   model.BrightnessArgs{Brightness: 10},
		}},
		{"timeout out of range", model.CommandRequest{
			Action:  model.ActionTurnOff,
			Timeout: 99,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.ExecuteCommand(ctx, "AA:11", tc.req)
			var reqErr *apiclient.RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, http.StatusUnprocessableEntity, reqErr.StatusCode)
			assert.NotEmpty(t, reqErr.Detail)
		})
	}
}

func TestExecuteCommandUnknownDevice(t *testing.T) {
	_, client := setupSim(t)

	_, err := client.ExecuteCommand(context.Background(), "ZZ:99", model.CommandRequest{Action: model.ActionTurnOn})
	var reqErr *apiclient.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
}

func TestExecuteCommandIdempotentByID(t *testing.T) {
	sim, client := setupSim(t)
	sim.AddDevice(lightStatus("AA:11"))
	ctx := context.Background()

	first, err := client.ExecuteCommand(ctx, "AA:11", model.CommandRequest{ID: "cmd-1", Action: model.ActionTurnOn})
	require.NoError(t, err)
	second, err := client.ExecuteCommand(ctx, "AA:11", model.CommandRequest{ID: "cmd-1", Action: model.ActionTurnOn})
	require.NoError(t, err)
	assert.Equal(t, first, second, "replaying an id returns the original record")

	recs, err := client.ListCommands(ctx, "AA:11", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestListCommandsNewestFirst(t *testing.T) {
	sim, client := setupSim(t)
	sim.AddDevice(lightStatus("AA:11"))
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := client.ExecuteCommand(ctx, "AA:11", model.CommandRequest{ID: id, Action: model.ActionTurnOn})
		require.NoError(t, err)
	}

	recs, err := client.ListCommands(ctx, "AA:11", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c3", recs[0].ID)
	assert.Equal(t, "c2", recs[1].ID)
}

func TestConfigurationsLifecycle(t *testing.T) {
	sim, client := setupSim(t)
	sim.AddDevice(lightStatus("AA:11"))
	ctx := context.Background()

	conf, err := client.Configurations(ctx, "AA:11")
	require.NoError(t, err)
	assert.Equal(t, "WRGB II", conf.Name, "default configuration names the device after its model")
	assert.True(t, conf.AutoReconnect)
	assert.Equal(t, 1, conf.Revision)

	conf.AutoPrograms = []model.AutoProgram{{
		Label:   "Daylight",
		Enabled: true,
		Days:    []model.Weekday{model.Monday, model.Wednesday},
		Sunrise: "08:00",
		Sunset:  "18:00",
		Levels:  map[string]int{"red": 80},
	}}
	require.NoError(t, client.PutConfigurations(ctx, "AA:11", conf))

	saved, err := client.Configurations(ctx, "AA:11")
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Revision)
	require.Len(t, saved.AutoPrograms, 1)
	assert.Equal(t, "Daylight", saved.AutoPrograms[0].Label)

	name := "Display Tank"
	require.NoError(t, client.PatchNaming(ctx, "AA:11", model.NamingUpdate{
		Name:      &name,
		HeadNames: []string{"left", "right"},
	}))

	off := false
	tz := "America/Chicago"
	require.NoError(t, client.PatchSettings(ctx, "AA:11", model.SettingsUpdate{
		AutoReconnect: &off,
		Timezone:      &tz,
	}))

	final, err := client.Configurations(ctx, "AA:11")
	require.NoError(t, err)
	assert.Equal(t, "Display Tank", final.Name)
	assert.Equal(t, []string{"left", "right"}, final.HeadNames)
	assert.False(t, final.AutoReconnect)
	assert.Equal(t, "America/Chicago", final.Timezone)
	require.Len(t, final.AutoPrograms, 1, "settings patch without programs leaves them alone")
	assert.Equal(t, 4, final.Revision)
}

func TestPutConfigurationsRejectsBadProgram(t *testing.T) {
	sim, client := setupSim(t)
	sim.AddDevice(lightStatus("AA:11"))

	err := client.PutConfigurations(context.Background(), "AA:11", &model.DeviceConfiguration{
		Address: "AA:11",
		AutoPrograms: []model.AutoProgram{{
			Label:   "Broken",
			Days:    []model.Weekday{model.Monday},
			Sunrise: "25:99",
			Sunset:  "18:00",
		}},
	})
	var reqErr *apiclient.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnprocessableEntity, reqErr.StatusCode)
}
