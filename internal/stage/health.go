package stage

// Health is one provider's readiness as shown by `keepsake status` and /api/status.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }

// Probe converts the result of a provider ping into a Health record.
func Probe(name string, err error) Health {
	if err != nil {
		return Unhealthy(name, err.Error())
	}
	return Healthy(name)
}
