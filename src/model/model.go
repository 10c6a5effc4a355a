package cowin

import (
	"encoding/json"
	"strconv"
)

// DateFormat is the DD-MM-YYYY layout used by the CoWIN API.
const DateFormat = "02-01-2006"

const (
	FeeTypeFree = "Free"
	FeeTypePaid = "Paid"

	// DefaultMinAgeLimit is the age tier assumed when a session carries none.
	DefaultMinAgeLimit = 45
)

type State struct {
	StateID   int
	StateName string
}

type District struct {
	StateID      int
	DistrictID   int
	DistrictName string
}

// Session is one date's slot information at a center.
type Session struct {
	SessionID              string
	Date                   string
	AvailableCapacity      int
	AvailableCapacityDose1 int
	AvailableCapacityDose2 int
	MinAgeLimit            int
	Vaccine                string
	Slots                  []string
}

// Center is one vaccination facility as returned for a fetch window.
type Center struct {
	CenterID     int
	Name         string
	Address      string
	StateName    string
	DistrictName string
	BlockName    string
	Pincode      string
	From         string
	To           string
	FeeType      string
	Sessions     []Session
	VaccineFees  map[string]string
}

// Clone returns a deep copy of c.
func (c Center) Clone() Center {
	out := c
	if c.Sessions != nil {
		out.Sessions = make([]Session, len(c.Sessions))
		for i, s := range c.Sessions {
			if s.Slots != nil {
				s.Slots = append([]string(nil), s.Slots...)
			}
			out.Sessions[i] = s
		}
	}
	if c.VaccineFees != nil {
		out.VaccineFees = make(map[string]string, len(c.VaccineFees))
		for k, v := range c.VaccineFees {
			out.VaccineFees[k] = v
		}
	}
	return out
}

// Selection is the last state, district and date a user picked.
type Selection struct {
	StateID    string `json:"state_id"`
	DistrictID string `json:"district_id"`
	Date       string `json:"date"`
}

type CowinStatesResponse struct {
	States *[]struct {
		StateID   int    `json:"state_id"`
		StateName string `json:"state_name"`
	} `json:"states"`
}

type CowinDistrictsResponse struct {
	Districts *[]struct {
		StateID      int    `json:"state_id"`
		DistrictID   int    `json:"district_id"`
		DistrictName string `json:"district_name"`
	} `json:"districts"`
}

type CowinCentersResponse struct {
	Centers *[]Centers `json:"centers"`
}

type Centers struct {
	CenterID     int           `json:"center_id"`
	Name         string        `json:"name"`
	Address      string        `json:"address"`
	StateName    string        `json:"state_name"`
	DistrictName string        `json:"district_name"`
	BlockName    string        `json:"block_name"`
	Pincode      json.Number   `json:"pincode"`
	From         string        `json:"from"`
	To           string        `json:"to"`
	FeeType      string        `json:"fee_type"`
	Sessions     []Sessions    `json:"sessions"`
	VaccineFees  []VaccineFees `json:"vaccine_fees"`
}

type Sessions struct {
	SessionID              string   `json:"session_id"`
	Date                   string   `json:"date"`
	AvailableCapacity      float64  `json:"available_capacity"`
	AvailableCapacityDose1 float64  `json:"available_capacity_dose1"`
	AvailableCapacityDose2 float64  `json:"available_capacity_dose2"`
	MinAgeLimit            *float64 `json:"min_age_limit"`
	Vaccine                string   `json:"vaccine"`
	Slots                  []string `json:"slots"`
}

type VaccineFees struct {
	Vaccine string `json:"vaccine"`
	Fee     string `json:"fee"`
}

func (value Centers) toCenter() Center {
	c := Center{
		CenterID:     value.CenterID,
		Name:         value.Name,
		Address:      value.Address,
		StateName:    value.StateName,
		DistrictName: value.DistrictName,
		BlockName:    value.BlockName,
		Pincode:      pincodeString(value.Pincode),
		From:         value.From,
		To:           value.To,
		FeeType:      value.FeeType,
	}

	for _, session := range value.Sessions {
		c.Sessions = append(c.Sessions, session.toSession())
	}

	if len(value.VaccineFees) > 0 {
		c.VaccineFees = make(map[string]string, len(value.VaccineFees))
		for _, fee := range value.VaccineFees {
			c.VaccineFees[fee.Vaccine] = fee.Fee
		}
	}
	return c
}

func (value Sessions) toSession() Session {
	s := Session{
		SessionID:              value.SessionID,
		Date:                   value.Date,
		AvailableCapacity:      capacity(value.AvailableCapacity),
		AvailableCapacityDose1: capacity(value.AvailableCapacityDose1),
		AvailableCapacityDose2: capacity(value.AvailableCapacityDose2),
		MinAgeLimit:            DefaultMinAgeLimit,
		Vaccine:                value.Vaccine,
		Slots:                  value.Slots,
	}
	if value.MinAgeLimit != nil {
		s.MinAgeLimit = int(*value.MinAgeLimit)
	}
	return s
}

func capacity(v float64) int {
	if v < 0 {
		return 0
	}
	return int(v)
}

func pincodeString(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	return n.String()
}
