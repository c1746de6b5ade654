package enums

import "testing"

func TestParsePaymentMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    PaymentMethod
		wantErr bool
	}{
		{in: "cod", want: PaymentMethodCOD},
		{in: "COD", want: PaymentMethodCOD},
		{in: " card ", want: PaymentMethodCard},
		{in: "ach", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePaymentMethod(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParsePaymentMethod(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParsePaymentMethod(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParsePaymentMethod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	if OrderStatusPaymentPending.IsTerminal() {
		t.Fatalf("payment_pending must not be terminal")
	}
	if !OrderStatusPlaced.IsTerminal() {
		t.Fatalf("placed must be terminal")
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatalf("expected unknown status to be rejected")
	}
}

func TestRoleIsOperator(t *testing.T) {
	if RoleBuyer.IsOperator() {
		t.Fatalf("buyer is not an operator")
	}
	if !RoleSeller.IsOperator() {
		t.Fatalf("seller is an operator")
	}
}
