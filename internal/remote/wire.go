package remote

import "github.com/felixgeelhaar/keysync/internal/domain"

// submitRequest is the POST /results body. The submit side of the API
// takes camelCase fields and calls the fingerprint "hash".
type submitRequest struct {
	UserID            string `json:"userId"`
	TestID            string `json:"testId"`
	Category          string `json:"category,omitempty"`
	WPM               int    `json:"wpm"`
	Accuracy          int    `json:"accuracy"`
	Errors            int    `json:"errors"`
	TotalCharacters   int    `json:"totalCharacters"`
	CorrectCharacters int    `json:"correctCharacters"`
	TimeElapsed       int64  `json:"timeElapsed"`
	Timestamp         int64  `json:"timestamp"`
	Hash              string `json:"hash"`
}

// submitResponse covers both acceptance shapes the endpoint produces.
type submitResponse struct {
	Accepted  bool `json:"accepted"`
	Duplicate bool `json:"duplicate"`
}

// fetchedResult is one element of GET /users/{id}/results, which answers
// in snake_case.
type fetchedResult struct {
	TestID            string `json:"test_id"`
	Category          string `json:"category"`
	WPM               int    `json:"wpm"`
	Accuracy          int    `json:"accuracy"`
	Errors            int    `json:"errors"`
	TotalCharacters   int    `json:"total_characters"`
	CorrectCharacters int    `json:"correct_characters"`
	TimeElapsed       int64  `json:"time_elapsed"`
	Timestamp         int64  `json:"timestamp"`
	Hash              string `json:"hash"`
}

func toSubmitRequest(userID string, r domain.Result) submitRequest {
	return submitRequest{
		UserID:            userID,
		TestID:            r.TestID,
		Category:          r.Category,
		WPM:               r.WPM,
		Accuracy:          r.Accuracy,
		Errors:            r.Errors,
		TotalCharacters:   r.TotalCharacters,
		CorrectCharacters: r.CorrectCharacters,
		TimeElapsed:       r.TimeElapsed,
		Timestamp:         r.Timestamp,
		Hash:              r.Fingerprint,
	}
}

func (f fetchedResult) toDomain() domain.Result {
	return domain.Result{
		TestID:            f.TestID,
		Category:          f.Category,
		WPM:               f.WPM,
		Accuracy:          f.Accuracy,
		Errors:            f.Errors,
		TotalCharacters:   f.TotalCharacters,
		CorrectCharacters: f.CorrectCharacters,
		TimeElapsed:       f.TimeElapsed,
		Timestamp:         f.Timestamp,
		Fingerprint:       f.Hash,
	}
}
