// Command agencyctl is an operator/client CLI that drives a running
// agencyd instance through its public wire protocol: Connect, SignUp,
// CreateAgent and CreateKey, one command each. It keeps its own
// small local identity wallet so it can authcrypt/anoncrypt requests
// exactly like any other client of the core would. Styled after the
// teacher's cmds.Cmd/Result command pattern (cmds/agency/ping.go,
// cmds/agent/export.go), flattened into cobra commands since this
// module has no gRPC transport of its own to dispatch through.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-mesh/agency/internal/memwallet"
	"github.com/vault-mesh/agency/internal/walletapi"
	"github.com/vault-mesh/agency/internal/wire"
)

const walletID = "agencyctl"

type clientState struct {
	Endpoint       string `json:"endpoint"`
	AgencyDID      string `json:"agencyDid"`
	AgencyVerKey   string `json:"agencyVerKey"`
	MyDID          string `json:"myDid"`
	MyVerKey       string `json:"myVerKey"`
	PairwiseDID    string `json:"pairwiseDid"`
	PairwiseVerKey string `json:"pairwiseVerKey"`
	AgentDID       string `json:"agentDid"`
	AgentVerKey    string `json:"agentVerKey"`
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".agencyctl")
}

func statePath() string { return filepath.Join(stateDir(), "state.json") }

func loadState() (clientState, error) {
	var st clientState
	raw, err := os.ReadFile(statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, err
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, err
	}
	return st, nil
}

func saveState(st clientState) error {
	if err := os.MkdirAll(stateDir(), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(statePath(), raw, 0o600)
}

// client bundles the local wallet identity and pending state together
// for the duration of one command.
type client struct {
	ctx    context.Context
	wallet *memwallet.Wallet
	handle walletapi.Handle
	state  clientState
}

func newClient(ctx context.Context) (*client, error) {
	st, err := loadState()
	if err != nil {
		return nil, err
	}
	w := memwallet.New(stateDir())
	cfg := walletapi.Config{ID: walletID}
	creds := walletapi.Credentials{}
	if err := w.Create(ctx, cfg, creds); err != nil {
		if _, ok := err.(*walletapi.ErrAlreadyExists); !ok {
			return nil, err
		}
	}
	h, err := w.Open(ctx, cfg, creds)
	if err != nil {
		return nil, err
	}
	if st.MyDID == "" {
		did, err := w.CreateAndStoreMyDID(ctx, h, nil)
		if err != nil {
			return nil, err
		}
		st.MyDID, st.MyVerKey = did.DID, did.VerKey
		if err := saveState(st); err != nil {
			return nil, err
		}
	}
	return &client{ctx: ctx, wallet: w, handle: h, state: st}, nil
}

func (c *client) save() error { return saveState(c.state) }

// postAuth authcrypts body from myVerKey to theirVerKey: the transport
// every request in this protocol uses, including the very first
// Connect, since the agency's forward agent only tries AnonDecrypt to
// test for an onion-routed Forward before falling back to an
// authcrypted control message (internal/forwardagent.HandleA2A). A
// request addressed to any verkey other than the agency's own is
// wrapped in a Forward to theirVerKey and anoncrypted to the agency.
func (c *client) postAuth(endpoint, myVerKey, theirVerKey string, t wire.MessageType, body any) (wire.Envelope, error) {
	raw, err := wire.Bundle(c.ctx, c.wallet, c.handle, wire.V2, myVerKey, theirVerKey, t, body)
	if err != nil {
		return wire.Envelope{}, err
	}
	if theirVerKey != c.state.AgencyVerKey {
		fwd, err := wire.BuildForward(wire.V2, theirVerKey, raw)
		if err != nil {
			return wire.Envelope{}, err
		}
		if raw, err = c.wallet.AnonCrypt(c.ctx, c.state.AgencyVerKey, fwd); err != nil {
			return wire.Envelope{}, err
		}
	}
	return c.send(endpoint, raw)
}

func (c *client) send(endpoint string, ciphertext []byte) (wire.Envelope, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, endpoint, bytes.NewReader(ciphertext))
	if err != nil {
		return wire.Envelope{}, err
	}
	req.Header.Set("Content-Type", "application/ssi-agent-wire")
	resp, err := httpClient.Do(req)
	if err != nil {
		return wire.Envelope{}, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return wire.Envelope{}, err
	}
	if resp.StatusCode >= 300 {
		return wire.Envelope{}, fmt.Errorf("agencyctl: server returned %s: %s", resp.Status, string(out))
	}

	// Every reply in this protocol is authcrypted back to the verkey the
	// request was sent from (internal/wire.Bundle), so c.state.MyVerKey
	// is always the right decryption key regardless of which step of
	// onboarding this call belongs to.
	_, plaintext, err := c.wallet.AuthDecrypt(c.ctx, c.handle, c.state.MyVerKey, out)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("agencyctl: decrypt reply: %w", err)
	}
	env, _, err := wire.DecodeEnvelope(plaintext)
	return env, err
}

func main() {
	root := &cobra.Command{
		Use:   "agencyctl",
		Short: "operator client for a cloud-mediator agency",
	}

	var endpoint, agencyDID, agencyVerKey string
	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to an agency, establishing the client pairwise relationship",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			c.state.Endpoint, c.state.AgencyDID, c.state.AgencyVerKey = endpoint, agencyDID, agencyVerKey

			env, err := c.postAuth(endpoint, c.state.MyVerKey, agencyVerKey, wire.MsgConnect, wire.Connect{
				FromDID: c.state.MyDID, FromDIDVerKey: c.state.MyVerKey,
			})
			if err != nil {
				return err
			}
			var resp wire.Connected
			if err := wire.DecodeBody(env, &resp); err != nil {
				return err
			}
			c.state.PairwiseDID, c.state.PairwiseVerKey = resp.WithPairwiseDID, resp.WithPairwiseDIDVerKey
			if err := c.save(); err != nil {
				return err
			}
			fmt.Printf("connected: pairwise-did=%s pairwise-verkey=%s\n", resp.WithPairwiseDID, resp.WithPairwiseDIDVerKey)
			return nil
		},
	}
	connectCmd.Flags().StringVar(&endpoint, "endpoint", "", "agency HTTP endpoint")
	connectCmd.Flags().StringVar(&agencyDID, "agency-did", "", "agency DID")
	connectCmd.Flags().StringVar(&agencyVerKey, "agency-verkey", "", "agency verkey")
	_ = connectCmd.MarkFlagRequired("endpoint")
	_ = connectCmd.MarkFlagRequired("agency-verkey")

	signUpCmd := &cobra.Command{
		Use:   "sign-up",
		Short: "Complete onboarding sign-up against the connected agency",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := c.postAuth(c.state.Endpoint, c.state.MyVerKey, c.state.PairwiseVerKey, wire.MsgSignUp, wire.SignUp{}); err != nil {
				return err
			}
			fmt.Println("signed up")
			return nil
		},
	}

	createAgentCmd := &cobra.Command{
		Use:   "create-agent",
		Short: "Create this client's cloud Agent identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			env, err := c.postAuth(c.state.Endpoint, c.state.MyVerKey, c.state.PairwiseVerKey, wire.MsgCreateAgent, wire.CreateAgent{})
			if err != nil {
				return err
			}
			var resp wire.AgentCreated
			if err := wire.DecodeBody(env, &resp); err != nil {
				return err
			}
			c.state.AgentDID, c.state.AgentVerKey = resp.WithPairwiseDID, resp.WithPairwiseDIDVerKey
			if err := c.save(); err != nil {
				return err
			}
			fmt.Printf("agent created: did=%s verkey=%s\n", resp.WithPairwiseDID, resp.WithPairwiseDIDVerKey)
			return nil
		},
	}

	var forDID, forVerKey string
	createKeyCmd := &cobra.Command{
		Use:   "create-key",
		Short: "Mint a new pairwise connection under this client's Agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			env, err := c.postAuth(c.state.Endpoint, c.state.MyVerKey, c.state.AgentVerKey, wire.MsgCreateKey, wire.CreateKey{
				ForDID: forDID, ForDIDVerKey: forVerKey,
			})
			if err != nil {
				return err
			}
			var resp wire.KeyCreated
			if err := wire.DecodeBody(env, &resp); err != nil {
				return err
			}
			fmt.Printf("connection created: did=%s verkey=%s\n", resp.WithPairwiseDID, resp.WithPairwiseDIDVerKey)
			return nil
		},
	}
	createKeyCmd.Flags().StringVar(&forDID, "for-did", "", "owner-side DID for this connection")
	createKeyCmd.Flags().StringVar(&forVerKey, "for-verkey", "", "owner-side verkey for this connection")
	_ = createKeyCmd.MarkFlagRequired("for-did")
	_ = createKeyCmd.MarkFlagRequired("for-verkey")

	root.AddCommand(connectCmd, signUpCmd, createAgentCmd, createKeyCmd)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "agencyctl:", err)
		os.Exit(1)
	}
}
