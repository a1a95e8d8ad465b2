package client

import (
	"encoding/json"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/wsprd/pkg/calibration"
	"github.com/charlie0129/wsprd/pkg/config"
	"github.com/charlie0129/wsprd/pkg/gnss"
	"github.com/charlie0129/wsprd/pkg/types"
)

// Message is the beacon message set through SetMessage. An empty grid
// means the daemon takes it from GNSS.
type Message struct {
	Callsign string `json:"callsign"`
	Grid     string `json:"grid"`
	PowerDbm int    `json:"powerDbm"`
}

// TxRecord is one entry of the transmission history.
type TxRecord struct {
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	Result           string    `json:"result"`
	Callsign         string    `json:"callsign"`
	Grid             string    `json:"grid"`
	PowerDbm         int       `json:"powerDbm"`
	DialFrequencyHz  float64   `json:"dialFrequencyHz"`
	MissedWrites     int       `json:"missedWrites"`
	MaxLatenessUs    int64     `json:"maxLatenessUs"`
	CorrectionFactor float64   `json:"correctionFactor"`
}

func (c *Client) GetStatus() (*types.Status, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var st types.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}

	return &st, nil
}

func (c *Client) GetCalibration() (*calibration.Stats, error) {
	ret, err := c.Get("/calibration")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get calibration")
	}

	var s calibration.Stats
	if err := json.Unmarshal([]byte(ret), &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal calibration")
	}

	return &s, nil
}

func (c *Client) GetHistory() ([]TxRecord, error) {
	ret, err := c.Get("/history")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get history")
	}

	var records []TxRecord
	if err := json.Unmarshal([]byte(ret), &records); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal history")
	}

	return records, nil
}

func (c *Client) GetGNSS() (*gnss.Fix, error) {
	ret, err := c.Get("/gnss")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get gnss fix")
	}

	var f gnss.Fix
	if err := json.Unmarshal([]byte(ret), &f); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal gnss fix")
	}

	return &f, nil
}

func (c *Client) PutGNSS(f gnss.Fix) (string, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return c.put("/gnss", string(payload))
}

func (c *Client) Abort() (string, error) {
	return c.post("/abort")
}

func (c *Client) Skip() (*types.Skip, error) {
	ret, err := c.Post("/skip", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to skip slot")
	}

	var s types.Skip
	if err := json.Unmarshal([]byte(ret), &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal skip response")
	}

	return &s, nil
}

func (c *Client) SetEnabled(enabled bool) (string, error) {
	return c.put("/enabled", strconv.FormatBool(enabled))
}

func (c *Client) SetMessage(m Message) (string, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return c.put("/message", string(payload))
}

func (c *Client) SetDialFrequency(hz float64) (string, error) {
	return c.put("/frequency", strconv.FormatFloat(hz, 'f', -1, 64))
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return unquote(ret), nil
}

// GetMetrics returns the Prometheus text exposition.
func (c *Client) GetMetrics() (string, error) {
	ret, err := c.Get("/metrics")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get metrics")
	}
	return ret, nil
}

func (c *Client) put(path, data string) (string, error) {
	ret, err := c.Put(path, data)
	if err != nil {
		return "", err
	}
	return unquote(ret), nil
}

func (c *Client) post(path string) (string, error) {
	ret, err := c.Post(path, "")
	if err != nil {
		return "", err
	}
	return unquote(ret), nil
}
