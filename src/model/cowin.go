package cowin

import (
	"context"
	"net/http"
	"net/url"
)

const (
	statesPath    = "admin/location/states"
	districtsPath = "admin/location/districts/"
	calendarPath  = "appointment/sessions/public/calendarByDistrict"
)

func (c *Client) addQueryParameters(districtID string, date string) string {
	var query = make(url.Values)
	query.Set("district_id", districtID)
	query.Set("date", date)
	return query.Encode()
}

func (c *Client) get(ctx context.Context, op string, u *url.URL, v interface{}) error {
	request, err := c.NewRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return c.DoJSON(op, request, v)
}

// States lists every state known to the API.
func (c *Client) States(ctx context.Context) ([]State, error) {
	const op = "get states"
	var response CowinStatesResponse
	if err := c.get(ctx, op, &url.URL{Path: statesPath}, &response); err != nil {
		return nil, err
	}
	if response.States == nil {
		return nil, &MalformedResponseError{Op: op, Key: "states"}
	}

	states := make([]State, 0, len(*response.States))
	for _, value := range *response.States {
		states = append(states, State{StateID: value.StateID, StateName: value.StateName})
	}
	return states, nil
}

// Districts lists the districts of stateID.
func (c *Client) Districts(ctx context.Context, stateID string) ([]District, error) {
	const op = "get districts"
	var response CowinDistrictsResponse
	u := &url.URL{Path: districtsPath + url.PathEscape(stateID)}
	if err := c.get(ctx, op, u, &response); err != nil {
		return nil, err
	}
	if response.Districts == nil {
		return nil, &MalformedResponseError{Op: op, Key: "districts"}
	}

	districts := make([]District, 0, len(*response.Districts))
	for _, value := range *response.Districts {
		districts = append(districts, District{
			StateID:      value.StateID,
			DistrictID:   value.DistrictID,
			DistrictName: value.DistrictName,
		})
	}
	return districts, nil
}

// Centers returns the centers of a district with their sessions for the
// week starting at date (DD-MM-YYYY), in the order the API returned them.
func (c *Client) Centers(ctx context.Context, districtID, date string) ([]Center, error) {
	const op = "get centers"
	var response CowinCentersResponse
	u := &url.URL{Path: calendarPath, RawQuery: c.addQueryParameters(districtID, date)}
	if err := c.get(ctx, op, u, &response); err != nil {
		return nil, err
	}
	if response.Centers == nil {
		return nil, &MalformedResponseError{Op: op, Key: "centers"}
	}

	centers := make([]Center, 0, len(*response.Centers))
	for _, value := range *response.Centers {
		centers = append(centers, value.toCenter())
	}
	return centers, nil
}
