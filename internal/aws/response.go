// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package aws

import (
	"encoding/json"

	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/smithy-go/middleware"

	"github.com/subfish/subfish/internal/log"
)

// LogResponse records an API call: the request id at debug and, when trace
// is on, the decoded response body.
func LogResponse(op string, md middleware.Metadata, body any) {
	requestID, _ := awsmiddleware.GetRequestIDMetadata(md)
	log.Debugf("%s: request_id=%s", op, requestID)

	if !log.TraceEnabled() {
		return
	}
	raw, err := json.Marshal(body)
	if err != nil {
		log.Tracef("%s: body=%v", op, body)
		return
	}
	log.Tracef("%s: body=%s", op, raw)
}
