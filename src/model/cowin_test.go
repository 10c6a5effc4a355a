package cowin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL+"/api/v2/", WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestCentersDecodesCalendarResponse(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/appointment/sessions/public/calendarByDistrict" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"centers":[{
			"center_id": 561,
			"name": "PHC Kadapa",
			"pincode": 516001,
			"fee_type": "Paid",
			"block_name": "Kadapa",
			"sessions": [
				{"date":"16-10-2026","available_capacity":12,"min_age_limit":18,"vaccine":"COVISHIELD","slots":["09:00AM-11:00AM"]},
				{"date":"17-10-2026","available_capacity":0}
			],
			"vaccine_fees": [{"vaccine":"COVISHIELD","fee":"780"}],
			"unknown_field": true
		}]}`))
	})

	centers, err := client.Centers(context.Background(), "581", "16-10-2026")
	if err != nil {
		t.Fatalf("Centers() error = %v", err)
	}
	if gotQuery != "date=16-10-2026&district_id=581" {
		t.Fatalf("query = %q", gotQuery)
	}

	want := []Center{{
		CenterID:  561,
		Name:      "PHC Kadapa",
		Pincode:   "516001",
		FeeType:   FeeTypePaid,
		BlockName: "Kadapa",
		Sessions: []Session{
			{Date: "16-10-2026", AvailableCapacity: 12, MinAgeLimit: 18, Vaccine: "COVISHIELD", Slots: []string{"09:00AM-11:00AM"}},
			{Date: "17-10-2026", AvailableCapacity: 0, MinAgeLimit: DefaultMinAgeLimit},
		},
		VaccineFees: map[string]string{"COVISHIELD": "780"},
	}}
	if !reflect.DeepEqual(centers, want) {
		t.Fatalf("Centers() = %+v, want %+v", centers, want)
	}
}

func TestCentersEmptyIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"centers":[]}`))
	})

	centers, err := client.Centers(context.Background(), "1", "16-10-2026")
	if err != nil {
		t.Fatalf("Centers() error = %v", err)
	}
	if len(centers) != 0 {
		t.Fatalf("expected no centers, got %d", len(centers))
	}
}

func TestMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing key", body: `{"sessions":[]}`},
		{name: "null key", body: `{"centers":null}`},
		{name: "not json", body: `<html>maintenance</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			_, err := client.Centers(context.Background(), "1", "16-10-2026")
			var malformed *MalformedResponseError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedResponseError, got %v", err)
			}
		})
	}
}

func TestForbiddenIsRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.States(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var transport *TransportError
	if !errors.As(err, &transport) || transport.StatusCode != http.StatusForbidden {
		t.Fatalf("expected TransportError with 403, got %v", err)
	}
}

func TestServerErrorIsTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Centers(context.Background(), "1", "16-10-2026")
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if errors.Is(err, ErrRateLimited) {
		t.Fatal("500 must not be reported as rate limited")
	}
}

func TestStatesAndDistricts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/admin/location/states":
			w.Write([]byte(`{"states":[{"state_id":2,"state_name":"Andhra Pradesh"}],"ttl":24}`))
		case "/api/v2/admin/location/districts/2":
			w.Write([]byte(`{"districts":[{"state_id":2,"district_id":9,"district_name":"Anantapur"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	states, err := client.States(context.Background())
	if err != nil {
		t.Fatalf("States() error = %v", err)
	}
	if !reflect.DeepEqual(states, []State{{StateID: 2, StateName: "Andhra Pradesh"}}) {
		t.Fatalf("States() = %+v", states)
	}

	districts, err := client.Districts(context.Background(), "2")
	if err != nil {
		t.Fatalf("Districts() error = %v", err)
	}
	if !reflect.DeepEqual(districts, []District{{StateID: 2, DistrictID: 9, DistrictName: "Anantapur"}}) {
		t.Fatalf("Districts() = %+v", districts)
	}
}

func TestCloneDoesNotShareSessions(t *testing.T) {
	original := Center{
		CenterID:    1,
		Sessions:    []Session{{Date: "16-10-2026", AvailableCapacity: 3, Slots: []string{"a"}}},
		VaccineFees: map[string]string{"COVAXIN": "1410"},
	}

	clone := original.Clone()
	clone.Sessions[0].AvailableCapacity = 0
	clone.Sessions[0].Slots[0] = "b"
	clone.VaccineFees["COVAXIN"] = "0"

	if original.Sessions[0].AvailableCapacity != 3 || original.Sessions[0].Slots[0] != "a" {
		t.Fatal("clone mutated original sessions")
	}
	if original.VaccineFees["COVAXIN"] != "1410" {
		t.Fatal("clone mutated original fees")
	}
}
