package authz

import "runline/internal/domain"

// Action is a capability drawn from a closed set per scope.
type Action string

// Project actions.
const (
	ActionProjectRead                      Action = "canRead"
	ActionProjectUpdate                    Action = "canUpdate"
	ActionProjectDelete                    Action = "canDelete"
	ActionProjectInvite                    Action = "canInvite"
	ActionProjectCreateModel               Action = "canCreateModel"
	ActionProjectCreateAutomation          Action = "canCreateAutomation"
	ActionProjectBroadcastActivity         Action = "canBroadcastActivity"
	ActionProjectReadWebhooks              Action = "canReadWebhooks"
	ActionProjectMoveToWorkspace           Action = "canMoveToWorkspace"
	ActionProjectPublish                   Action = "canPublish"
	ActionProjectLoad                      Action = "canLoad"
	ActionProjectLeave                     Action = "canLeave"
	ActionProjectUpdateAllowPublicComments Action = "canUpdateAllowPublicComments"
	ActionProjectReadSettings              Action = "canReadSettings"
	ActionProjectRequestRender             Action = "canRequestRender"
)

// Workspace actions.
const (
	ActionWorkspaceCreateProject          Action = "canCreateProject"
	ActionWorkspaceInvite                 Action = "canInvite"
	ActionWorkspaceEditEmbedOptions       Action = "canEditEmbedOptions"
	ActionWorkspaceMoveProjectToWorkspace Action = "canMoveProjectToWorkspace"
)

// Server actions.
const (
	ActionServerCreatePersonalProject Action = "canCreatePersonalProject"
)

// capability describes one entry of the static capability table.
type capability struct {
	// minLevel is the minimum effective role level (projectRoleLevel or
	// workspaceRoleLevel scale) required for the action.
	minLevel int
	// write marks actions that mutate state. Writes are subject to the
	// seat ceiling and the plan read-only fallback.
	write bool
}

// projectCapabilities maps project actions onto minimum effective project
// role levels. Adding an Action constant without a row here makes every
// check for it deny, which surfaces immediately in tests.
var projectCapabilities = map[Action]capability{
	ActionProjectRead:                      {minLevel: 1},
	ActionProjectLoad:                      {minLevel: 1},
	ActionProjectReadSettings:              {minLevel: 1},
	ActionProjectLeave:                     {minLevel: 1},
	ActionProjectBroadcastActivity:         {minLevel: 1, write: true},
	ActionProjectCreateModel:               {minLevel: 2, write: true},
	ActionProjectPublish:                   {minLevel: 2, write: true},
	ActionProjectRequestRender:             {minLevel: 2, write: true},
	ActionProjectUpdate:                    {minLevel: 3, write: true},
	ActionProjectDelete:                    {minLevel: 3, write: true},
	ActionProjectInvite:                    {minLevel: 3, write: true},
	ActionProjectCreateAutomation:          {minLevel: 3, write: true},
	ActionProjectReadWebhooks:              {minLevel: 3},
	ActionProjectMoveToWorkspace:           {minLevel: 3, write: true},
	ActionProjectUpdateAllowPublicComments: {minLevel: 3, write: true},
}

var workspaceCapabilities = map[Action]capability{
	ActionWorkspaceCreateProject:          {minLevel: 2, write: true},
	ActionWorkspaceInvite:                 {minLevel: 3, write: true},
	ActionWorkspaceEditEmbedOptions:       {minLevel: 3, write: true},
	ActionWorkspaceMoveProjectToWorkspace: {minLevel: 3, write: true},
}

// readOnlyActions are the project actions a server guest keeps regardless
// of project role.
var readOnlyActions = map[Action]bool{
	ActionProjectRead:         true,
	ActionProjectLoad:         true,
	ActionProjectReadSettings: true,
}

// serverActionRoles maps server-scope actions to the server roles allowed
// to perform them.
var serverActionRoles = map[Action][]domain.ServerRole{
	ActionServerCreatePersonalProject: {domain.ServerRoleAdmin, domain.ServerRoleUser},
}
