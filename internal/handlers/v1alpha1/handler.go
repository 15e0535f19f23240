package v1alpha1

import (
	"github.com/distcalc/orchestrator/internal/handlers/validator"
	"github.com/distcalc/orchestrator/internal/service"
)

type ServiceHandler struct {
	jobSrv    *service.JobService
	fleetSrv  *service.FleetService
	userSrv   *service.UserService
	validator *validator.Validator
}

func NewServiceHandler(jobService *service.JobService, fleetService *service.FleetService, userService *service.UserService) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewUserValidationRules()...)
	v.Register(validator.NewWorkerValidationRules()...)

	return &ServiceHandler{
		jobSrv:    jobService,
		fleetSrv:  fleetService,
		userSrv:   userService,
		validator: v,
	}
}
