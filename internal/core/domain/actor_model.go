package domain

import "github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_POLLER       = "poller"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
	ACTOR_ID_VALKEY       = "valkey"
)

// RefreshNowRequest asks the poller for an immediate refresh. Requests arriving while a
// refresh is in flight join it. Sent without a sender it only triggers the refresh.
type RefreshNowRequest struct {
	ActorRequestMixIn
}

type RefreshResponse struct {
	ActorResponseMixIn
	Snapshot *sungrow_modbus.Snapshot
}

type GetStatusRequest struct {
	ActorRequestMixIn
}

type GetStatusResponse struct {
	ActorResponseMixIn
	Status CoordinatorStatus
}

// SetVariableRequest writes the text form of a value to a named variable.
type SetVariableRequest struct {
	ActorRequestMixIn
	Name    string
	Payload string
}

type SetVariableResponse struct {
	ActorResponseMixIn
	Value any
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
	Selects      []GenericSelect
	Texts        []GenericText
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
