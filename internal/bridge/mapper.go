// Package bridge translates between internal role messages and the external
// agent protocol: role mapping, message translation, per-peer conversations,
// and protocol version negotiation.
package bridge

import (
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// ExternalRole is a role name defined by the external agent protocol.
type ExternalRole string

const (
	ExtRoleUser        ExternalRole = "user"
	ExtRoleSystem      ExternalRole = "system"
	ExtRoleAssistant   ExternalRole = "assistant"
	ExtRoleTool        ExternalRole = "tool"
	ExtRoleDataSource  ExternalRole = "data_source"
	ExtRoleObserver    ExternalRole = "observer"
	ExtRoleValidator   ExternalRole = "validator"
	ExtRoleCoordinator ExternalRole = "coordinator"
	ExtRoleExecutor    ExternalRole = "executor"
	ExtRolePlanner     ExternalRole = "planner"
	ExtRoleCritic      ExternalRole = "critic"
)

// defaultRoleMap maps the built-in internal roles to external protocol roles.
var defaultRoleMap = map[models.Role]ExternalRole{
	models.RoleProductManager: ExtRoleUser,
	models.RoleLead:           ExtRoleCoordinator,
	models.RoleEngineer:       ExtRoleExecutor,
	models.RoleTester:         ExtRoleValidator,
	models.RoleDesigner:       ExtRoleAssistant,
	models.RoleArchitect:      ExtRolePlanner,
	models.RoleDataEngineer:   ExtRoleDataSource,
	models.RoleOperator:       ExtRoleUser,
}

// taskTypeRoles maps well-known task types to the external role best suited
// to handle them. Used when an inbound message names no usable role.
var taskTypeRoles = map[models.TaskType]ExternalRole{
	models.TaskTypeArchitectureDesign: ExtRolePlanner,
	models.TaskTypeImplementation:     ExtRoleExecutor,
	models.TaskTypeTestExecution:      ExtRoleValidator,
	models.TaskTypeReview:             ExtRoleValidator,
	models.TaskTypePromptDesign:       ExtRoleAssistant,
	models.TaskTypeDataPipeline:       ExtRoleDataSource,
	models.TaskTypeResearch:           ExtRoleAssistant,
	models.TaskTypeConsultation:       ExtRoleAssistant,
}

// Mapper converts between internal roles and external protocol roles.
// Custom mappings from configuration overlay the built-in table.
type Mapper struct {
	mu      sync.RWMutex
	roleMap map[models.Role]ExternalRole
}

// NewMapper creates a Mapper. Entries in overrides shadow the built-in
// mappings; keys are internal role names, values external role names.
func NewMapper(overrides map[string]string) *Mapper {
	m := &Mapper{
		roleMap: make(map[models.Role]ExternalRole, len(defaultRoleMap)+len(overrides)),
	}
	for internal, external := range defaultRoleMap {
		m.roleMap[internal] = external
	}
	for internal, external := range overrides {
		m.roleMap[models.Role(internal)] = ExternalRole(external)
	}
	return m
}

// AddMapping adds or replaces a mapping at runtime.
func (m *Mapper) AddMapping(internal models.Role, external ExternalRole) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleMap[internal] = external
}

// Outbound returns the external role for an internal role. Unmapped roles
// fall back to assistant; the fallback is logged so operators notice gaps in
// the mapping table.
func (m *Mapper) Outbound(internal models.Role) ExternalRole {
	m.mu.RLock()
	external, ok := m.roleMap[internal]
	m.mu.RUnlock()

	if !ok {
		log.Printf("[bridge] no external mapping for role %q, falling back to assistant", internal)
		return ExtRoleAssistant
	}
	return external
}

// Inbound returns the internal roles mapped to an external role, sorted for
// determinism. An empty result means nothing maps to that external role.
func (m *Mapper) Inbound(external ExternalRole) []models.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var roles []models.Role
	for internal, ext := range m.roleMap {
		if ext == external {
			roles = append(roles, internal)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// InferFromTaskType picks an external role for a task type. Well-known types
// use the static table; unknown types are inferred from keywords in the type
// name. Inference is always logged since it is a guess.
func (m *Mapper) InferFromTaskType(taskType models.TaskType) ExternalRole {
	if role, ok := taskTypeRoles[taskType]; ok {
		return role
	}

	name := strings.ToLower(string(taskType))
	var inferred ExternalRole
	switch {
	case strings.Contains(name, "design") || strings.Contains(name, "plan") || strings.Contains(name, "architect"):
		inferred = ExtRolePlanner
	case strings.Contains(name, "test") || strings.Contains(name, "review") || strings.Contains(name, "validat"):
		inferred = ExtRoleValidator
	case strings.Contains(name, "data") || strings.Contains(name, "pipeline") || strings.Contains(name, "etl"):
		inferred = ExtRoleDataSource
	case strings.Contains(name, "implement") || strings.Contains(name, "exec") || strings.Contains(name, "build"):
		inferred = ExtRoleExecutor
	default:
		inferred = ExtRoleAssistant
	}

	log.Printf("[bridge] inferred external role %q for unknown task type %q", inferred, taskType)
	return inferred
}

// InferInternalRole picks an internal recipient role for an inbound message
// that names no mapped role, using the task type. Falls back to engineer when
// the inferred external role has no internal mapping.
func (m *Mapper) InferInternalRole(taskType models.TaskType) models.Role {
	external := m.InferFromTaskType(taskType)
	if roles := m.Inbound(external); len(roles) > 0 {
		return roles[0]
	}
	log.Printf("[bridge] no internal role maps to %q, defaulting to engineer", external)
	return models.RoleEngineer
}
