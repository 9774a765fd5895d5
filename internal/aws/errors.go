// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package aws

import (
	"errors"
	"slices"

	"github.com/aws/smithy-go"
)

// Error codes subfish reacts to.
const (
	CodeRouteTableNotFound     = "InvalidRouteTableID.NotFound"
	CodeRouteAlreadyExists     = "RouteAlreadyExists"
	CodeInvalidParameterValue  = "InvalidParameterValue"
	CodeGroupDuplicate         = "InvalidGroup.Duplicate"
	CodeGroupNotFound          = "InvalidGroup.NotFound"
	CodePermissionDuplicate    = "InvalidPermission.Duplicate"
	CodeLaunchTemplateExists   = "InvalidLaunchTemplateName.AlreadyExistsException"
	CodeLaunchTemplateNotFound = "InvalidLaunchTemplateId.NotFound"
	CodeLaunchTemplateNoName   = "InvalidLaunchTemplateName.NotFoundException"
	CodeEntityAlreadyExists    = "EntityAlreadyExists"
	CodeNoSuchEntity           = "NoSuchEntity"
	CodeResourceNotFound       = "ResourceNotFoundException"
	CodeResourceInUse          = "ResourceInUseException"
	CodeASGAlreadyExists       = "AlreadyExists"
	CodeNatGatewayNotFound     = "NatGatewayNotFound"
	CodeVpcNotFound            = "InvalidVpcID.NotFound"
	CodeSubnetNotFound         = "InvalidSubnetID.NotFound"
	CodeIGWNotFound            = "InvalidInternetGatewayID.NotFound"
	CodeGatewayNotAttached     = "Gateway.NotAttached"
	CodeAssociationNotFound    = "InvalidAssociationID.NotFound"
	CodeRouteNotFound          = "InvalidRoute.NotFound"
	CodeAllocationNotFound     = "InvalidAllocationID.NotFound"
	CodeInstanceNotFound       = "InvalidInstanceID.NotFound"
	CodeDependencyViolation    = "DependencyViolation"
	CodeValidationError        = "ValidationError"
)

// ErrorCode returns the AWS error code carried by err, or "" when err is not
// an API error.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// ErrorMessage returns the AWS error message carried by err, or err.Error().
func ErrorMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorMessage()
	}
	return err.Error()
}

// IsCode reports whether err is an API error with one of the given codes.
func IsCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	return slices.Contains(codes, ErrorCode(err))
}

// IgnoreCode returns nil when err carries one of codes, otherwise err.
func IgnoreCode(err error, codes ...string) error {
	if IsCode(err, codes...) {
		return nil
	}
	return err
}
