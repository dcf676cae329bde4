package server

// indexHTML is the interactive login page. It starts a browser session
// via the API and polls the session status until it reaches a terminal
// state.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Parent Dashboard Authentication</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
            background: #f5f6f8;
            margin: 0;
            display: flex;
            justify-content: center;
            padding-top: 8vh;
        }
        .container {
            background: white;
            border-radius: 12px;
            box-shadow: 0 2px 12px rgba(0, 0, 0, 0.1);
            padding: 40px;
            max-width: 480px;
            width: 100%;
        }
        h1 { margin: 0 0 8px; font-size: 24px; }
        .subtitle { color: #666; margin: 0 0 24px; }
        .status {
            display: none;
            padding: 14px;
            border-radius: 8px;
            margin-bottom: 16px;
            white-space: pre-line;
        }
        .status.info { background: #d1ecf1; color: #0c5460; }
        .status.success { background: #d4edda; color: #155724; }
        .status.error { background: #f8d7da; color: #721c24; }
        button {
            width: 100%;
            padding: 14px;
            background: #ff9900;
            color: white;
            border: none;
            border-radius: 8px;
            font-size: 16px;
            cursor: pointer;
        }
        button:hover:not(:disabled) { background: #e88b00; }
        button:disabled { background: #ccc; cursor: not-allowed; }
        .instructions { margin-top: 24px; color: #444; font-size: 14px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Parent Dashboard Authentication</h1>
        <p class="subtitle">Sign in once to let the integration read your family dashboard.</p>

        <div id="status" class="status"></div>

        <button id="authButton" onclick="startAuth()">Start Authentication</button>

        <div class="instructions">
            <ol>
                <li>Click the button above to open a browser window.</li>
                <li>Sign in with your Amazon account, including any MFA prompts.</li>
                <li>Leave this page open. It updates automatically once login finishes.</li>
            </ol>
        </div>
    </div>

    <script>
        let sessionId = null;
        let statusCheckInterval = null;

        async function startAuth() {
            const button = document.getElementById('authButton');
            button.disabled = true;
            button.textContent = 'Starting...';

            try {
                showStatus('Starting authentication...', 'info');

                const response = await fetch('/api/auth/start', { method: 'POST' });
                if (!response.ok) {
                    throw new Error('Failed to start authentication');
                }

                const data = await response.json();
                sessionId = data.session_id;

                showStatus('Browser window opened. Please sign in...', 'info');
                button.textContent = 'Waiting for login...';

                statusCheckInterval = setInterval(checkAuthStatus, 2000);
            } catch (error) {
                showStatus('Failed to start: ' + error.message, 'error');
                button.disabled = false;
                button.textContent = 'Retry';
            }
        }

        async function checkAuthStatus() {
            if (!sessionId) return;

            try {
                const response = await fetch('/api/auth/status/' + sessionId);
                const data = await response.json();
                const button = document.getElementById('authButton');

                if (data.status === 'completed') {
                    clearInterval(statusCheckInterval);
                    let message = 'Authentication successful. ' + data.cookie_count + ' cookies saved.';
                    if (data.has_csrf_token) {
                        message += '\nCSRF token extracted.';
                    }
                    showStatus(message, 'success');
                    button.textContent = 'Authentication Complete';
                } else if (data.status === 'timeout') {
                    clearInterval(statusCheckInterval);
                    showStatus('Authentication timed out. Please try again.', 'error');
                    button.disabled = false;
                    button.textContent = 'Retry Authentication';
                } else if (data.status === 'error') {
                    clearInterval(statusCheckInterval);
                    showStatus('Error: ' + (data.error || 'Unknown error'), 'error');
                    button.disabled = false;
                    button.textContent = 'Retry Authentication';
                }
            } catch (error) {
                console.error('Status check failed:', error);
            }
        }

        function showStatus(message, type) {
            const status = document.getElementById('status');
            status.textContent = message;
            status.className = 'status ' + type;
            status.style.display = 'block';
        }

        window.addEventListener('load', async () => {
            try {
                const response = await fetch('/api/cookies/check');
                const data = await response.json();
                if (data.exists) {
                    showStatus('Cookies are already saved. The integration can use them now.', 'success');
                }
            } catch (error) {
                // initial check is best-effort
            }
        });
    </script>
</body>
</html>
`
