// Package render talks to the HTTP video render job service.
//
// A render is a two-step exchange: Submit posts the script to /jobs and
// receives a job id; Render then polls /jobs/{id} with bounded exponential
// backoff until the job reports done or failed, or until the configured wait
// window closes. A closed window yields an error matching services.ErrTimeout.
package render
