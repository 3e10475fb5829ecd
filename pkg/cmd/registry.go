package cmd

import (
	"log/slog"

	addtag "github.com/magnusmagz/crm-k-sub002/pkg/actions/add_tag"
	changedealstage "github.com/magnusmagz/crm-k-sub002/pkg/actions/change_deal_stage"
	createtask "github.com/magnusmagz/crm-k-sub002/pkg/actions/create_task"
	httprequest "github.com/magnusmagz/crm-k-sub002/pkg/actions/http_request"
	logaction "github.com/magnusmagz/crm-k-sub002/pkg/actions/log"
	removetag "github.com/magnusmagz/crm-k-sub002/pkg/actions/remove_tag"
	sendemail "github.com/magnusmagz/crm-k-sub002/pkg/actions/send_email"
	updatefield "github.com/magnusmagz/crm-k-sub002/pkg/actions/update_field"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
	"github.com/magnusmagz/crm-k-sub002/pkg/registry"
)

// NewRegistry builds the action catalog. emailEndpoint may be empty;
// send_email actions then fail at execution time rather than at save
// time, since definitions are portable across environments.
func NewRegistry(logger *slog.Logger, entityService entities.Service, emailEndpoint string) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(updatefield.NewUpdateFieldActionFactory(entityService))
	reg.RegisterAction(changedealstage.NewChangeDealStageActionFactory(entityService))
	reg.RegisterAction(addtag.NewAddTagActionFactory(entityService))
	reg.RegisterAction(removetag.NewRemoveTagActionFactory(entityService))
	reg.RegisterAction(createtask.NewCreateTaskActionFactory(entityService))
	reg.RegisterAction(sendemail.NewSendEmailActionFactory(emailEndpoint, nil))
	reg.RegisterAction(httprequest.NewHTTPRequestActionFactory())
	reg.RegisterAction(logaction.NewLogActionFactory())

	return reg
}
