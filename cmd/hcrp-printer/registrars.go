package main

import (
	"errors"

	"github.com/backkem/hcrp/pkg/discovery"
)

// registrars announces a record through every registrar it holds. A
// failure withdraws the announcements already made.
type registrars []discovery.Registrar

func (rs registrars) Register(rec discovery.ServiceRecord) (discovery.Registration, error) {
	var regs multiRegistration
	for _, r := range rs {
		reg, err := r.Register(rec)
		if err != nil {
			return nil, errors.Join(err, regs.Close())
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

type multiRegistration []discovery.Registration

func (m multiRegistration) Close() error {
	var errs []error
	for _, reg := range m {
		if err := reg.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
