package artifact

import (
	"bytes"
	"fmt"
	"text/template"

	"dokpub/internal/trigger"
)

// workflowTemplate is the CI pipeline emitted by workflow mode. The trigger
// step is rendered from the same endpoint and header constants the trigger
// client uses, so the two invocation paths cannot drift apart. Go template
// delimiters are remapped because the workflow itself uses ${{ }}.
const workflowTemplate = `name: Deploy Datasette to Dokploy

on:
  push:
    branches: [main]
  workflow_dispatch:

permissions:
  contents: read
  packages: write

jobs:
  deploy:
    runs-on: ubuntu-latest
    steps:
      - name: Checkout
        uses: actions/checkout@v4

      - name: Log in to GHCR
        uses: docker/login-action@v3
        with:
          registry: ghcr.io
          username: ${{ github.actor }}
          password: ${{ secrets.GITHUB_TOKEN }}

      - name: Build and push image
        uses: docker/build-push-action@v6
        with:
          context: .
          push: true
          tags: ghcr.io/${{ github.repository }}:latest

      - name: Trigger Dokploy deployment
        env:
          DOKPLOY_URL: ${{ secrets.DOKPLOY_URL }}
          DOKPLOY_AUTH_TOKEN: ${{ secrets.DOKPLOY_AUTH_TOKEN }}
          DOKPLOY_APPLICATION_ID: ${{ secrets.DOKPLOY_APPLICATION_ID }}
        run: |
          curl -fsS -X POST "${DOKPLOY_URL%/}<<.DeployPath>>" \
            -H "<<.APIKeyHeader>>: ${DOKPLOY_AUTH_TOKEN}" \
            -H "accept: application/json" \
            -H "content-type: application/json" \
            -d "{\"applicationId\": \"${DOKPLOY_APPLICATION_ID}\"}"
`

var workflowTmpl = template.Must(template.New("workflow").Delims("<<", ">>").Parse(workflowTemplate))

// Workflow renders the GitHub Actions workflow definition. The emitted
// trigger step performs the same API call the trigger client issues,
// consuming the DOKPLOY_URL, DOKPLOY_AUTH_TOKEN, and DOKPLOY_APPLICATION_ID
// secrets from the CI secret store.
func Workflow() []byte {
	var buf bytes.Buffer
	err := workflowTmpl.Execute(&buf, struct {
		DeployPath   string
		APIKeyHeader string
	}{
		DeployPath:   trigger.DeployPath,
		APIKeyHeader: trigger.APIKeyHeader,
	})
	if err != nil {
		panic(fmt.Sprintf("workflow template: %v", err))
	}
	return buf.Bytes()
}
