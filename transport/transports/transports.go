// Package transports imports every built-in transport so that each registers
// itself with the default registry.
package transports

import (
	_ "github.com/drblury/flowguard/transport/aws"
	_ "github.com/drblury/flowguard/transport/channel"
	_ "github.com/drblury/flowguard/transport/http"
	_ "github.com/drblury/flowguard/transport/kafka"
	_ "github.com/drblury/flowguard/transport/nats"
	_ "github.com/drblury/flowguard/transport/rabbitmq"
)
